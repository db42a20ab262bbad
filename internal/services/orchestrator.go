package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/talka-ai/talka-backend/internal/models"
	"github.com/talka-ai/talka-backend/internal/storage"
	"github.com/talka-ai/talka-backend/internal/utils"
)

// Consent widget message contract
const (
	consentMessageType = "WA_EMBEDDED_SIGNUP"

	ConsentEventFinish            = "FINISH"
	ConsentEventFinishBusinessApp = "FINISH_WHATSAPP_BUSINESS_APP_ONBOARDING"
	ConsentEventCancel            = "CANCEL"
	ConsentEventError             = "ERROR"
)

// ConsentEvent is the structured message posted by the OAuth consent widget
type ConsentEvent struct {
	Type  string           `json:"type"`
	Event string           `json:"event"`
	Data  ConsentEventData `json:"data"`
}

type ConsentEventData struct {
	PhoneNumberID string `json:"phone_number_id"`
	WabaID        string `json:"waba_id"`
	CurrentStep   string `json:"current_step"`
	ErrorMessage  string `json:"error_message"`
}

// GraphAPI is the platform surface the orchestrator drives
type GraphAPI interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
	RegisterPhone(ctx context.Context, phoneNumberID, pin, accessToken string) error
	SubscribeApp(ctx context.Context, wabaID, accessToken string) error
	ListPhoneNumbers(ctx context.Context, wabaID, accessToken string) ([]GraphPhoneNumber, error)
	GetPhoneNumber(ctx context.Context, phoneNumberID, accessToken string) (*GraphPhoneNumber, error)
	RequestSync(ctx context.Context, phoneNumberID, accessToken, syncType string) (string, error)
}

// Notifier is told when provisioning reaches the terminal state
type Notifier interface {
	NotifyProvisioned(orgID, phoneNumber string) error
}

var (
	ErrInvalidState       = errors.New("operation not allowed in current signup state")
	ErrOperationInFlight  = errors.New("another signup operation is in flight")
	ErrInvalidPIN         = errors.New("pin must be exactly 6 digits")
	ErrPINNotRequired     = errors.New("imported business apps do not require pin registration")
	ErrMissingSessionData = errors.New("signup session is missing required data")
	ErrNoPhoneNumbers     = errors.New("no phone numbers found on the business account")
	ErrPhoneNotOffered    = errors.New("selected phone number was not offered by the platform")
	ErrSyncNotStarted     = errors.New("data sync has not been initiated for this session")
)

// Orchestrator runs the embedded-signup flow: a forward-only sequence of
// states, each tied to one external call, with retry re-entering the same
// state instead of rewinding. One transition at a time per session.
type Orchestrator struct {
	store     storage.Store
	graph     GraphAPI
	sessions  *SignupManager
	syncer    *SyncInitiator
	notifier  Notifier
	syncDelay time.Duration
}

// NewOrchestrator creates a new provisioning orchestrator
func NewOrchestrator(store storage.Store, graph GraphAPI, sessions *SignupManager, syncDelay time.Duration) *Orchestrator {
	return &Orchestrator{
		store:     store,
		graph:     graph,
		sessions:  sessions,
		syncer:    NewSyncInitiator(graph),
		syncDelay: syncDelay,
	}
}

// WithNotifier attaches a completion notifier
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// Start returns the organization's signup session, creating one if needed
func (o *Orchestrator) Start(orgID string) SignupSession {
	o.sessions.GetOrCreate(orgID)
	snapshot, _ := o.sessions.Snapshot(orgID)
	return snapshot
}

// Session returns a display copy of the current session
func (o *Orchestrator) Session(orgID string) (SignupSession, error) {
	return o.sessions.Snapshot(orgID)
}

// HandleConsentEvent consumes a message from the consent widget. The first
// qualifying completion event decides the onboarding branch; the decision is
// immutable for the rest of the session. Cancel/error events only surface a
// status message and never move the machine.
func (o *Orchestrator) HandleConsentEvent(orgID string, event ConsentEvent) error {
	if event.Type != consentMessageType {
		return nil // not a signup message, dropped
	}

	o.sessions.GetOrCreate(orgID)
	return o.sessions.Update(orgID, func(s *SignupSession) error {
		switch event.Event {
		case ConsentEventFinish:
			if s.Branch != BranchUnknown {
				return nil // branch already decided
			}
			s.Branch = BranchFresh
			s.PhoneNumberID = event.Data.PhoneNumberID
			s.WabaID = event.Data.WabaID
			log.Printf("Signup %s: fresh number onboarding (phone_number_id=%s waba_id=%s)",
				s.SessionID, s.PhoneNumberID, s.WabaID)

		case ConsentEventFinishBusinessApp:
			if s.Branch != BranchUnknown {
				return nil
			}
			s.Branch = BranchImported
			s.PhoneNumberID = event.Data.PhoneNumberID
			s.WabaID = event.Data.WabaID
			// Existing business apps arrive already registered: skip the PIN
			// step and land on the registered milestone immediately.
			switch s.State {
			case StateInitial, StateCodeReceived, StateTokenReceived:
				s.State = StateRegistered
			}
			log.Printf("Signup %s: importing existing business app (phone_number_id=%s waba_id=%s)",
				s.SessionID, s.PhoneNumberID, s.WabaID)

		case ConsentEventCancel:
			s.StatusMessage = "Signup was cancelled"
			if event.Data.CurrentStep != "" {
				s.StatusMessage = fmt.Sprintf("Signup was cancelled at step %s", event.Data.CurrentStep)
			}

		case ConsentEventError:
			s.StatusMessage = "Signup reported an error"
			if event.Data.ErrorMessage != "" {
				s.StatusMessage = fmt.Sprintf("Signup reported an error: %s", event.Data.ErrorMessage)
			}
		}
		// anything else is dropped without touching the machine
		return nil
	})
}

// SetGrantCode records the one-time OAuth code reported by the widget
func (o *Orchestrator) SetGrantCode(orgID, code string) error {
	if code == "" {
		return fmt.Errorf("%w: grant code", ErrMissingSessionData)
	}

	o.sessions.GetOrCreate(orgID)
	return o.sessions.Update(orgID, func(s *SignupSession) error {
		switch s.State {
		case StateInitial:
			s.GrantCode = code
			s.State = StateCodeReceived
		case StateCodeReceived, StateRegistered:
			// code re-reported, or imported branch waiting on exchange
			if s.AccessToken != "" {
				return fmt.Errorf("%w: %s", ErrInvalidState, s.State)
			}
			s.GrantCode = code
		default:
			return fmt.Errorf("%w: %s", ErrInvalidState, s.State)
		}
		return nil
	})
}

// ExchangeCode trades the grant code for an access token through the
// server-side proxy. Failure keeps the session where it is for re-exchange.
func (o *Orchestrator) ExchangeCode(ctx context.Context, orgID string) error {
	var code string
	state, err := o.begin(orgID, func(s *SignupSession) error {
		if s.State == StateRegistered && (s.Branch != BranchImported || s.AccessToken != "") {
			return fmt.Errorf("%w: %s", ErrInvalidState, s.State)
		}
		if s.GrantCode == "" {
			return fmt.Errorf("%w: grant code", ErrMissingSessionData)
		}
		code = s.GrantCode
		return nil
	}, StateCodeReceived, StateRegistered)
	if err != nil {
		return err
	}

	token, callErr := o.graph.ExchangeCode(ctx, code)
	if callErr != nil {
		o.fail(orgID, state, callErr)
		return callErr
	}

	o.succeed(orgID, state, func(s *SignupSession) {
		s.AccessToken = token
		s.GrantCode = "" // one-time code, spent
		if s.State == StateCodeReceived {
			if s.Branch == BranchImported {
				s.State = StateRegistered
			} else {
				s.State = StateTokenReceived
			}
		}
	})
	return nil
}

// RegisterPhone registers a fresh number with the user's 6-digit PIN.
// The imported branch never calls this.
func (o *Orchestrator) RegisterPhone(ctx context.Context, orgID, pin string) error {
	if !utils.IsValidPIN(pin) {
		return ErrInvalidPIN
	}

	var phoneNumberID, token string
	state, err := o.begin(orgID, func(s *SignupSession) error {
		if s.Branch == BranchImported {
			return ErrPINNotRequired
		}
		if s.PhoneNumberID == "" || s.AccessToken == "" {
			return fmt.Errorf("%w: phone number id and access token", ErrMissingSessionData)
		}
		phoneNumberID = s.PhoneNumberID
		token = s.AccessToken
		return nil
	}, StateTokenReceived)
	if err != nil {
		return err
	}

	callErr := o.graph.RegisterPhone(ctx, phoneNumberID, pin, token)
	if callErr != nil {
		o.fail(orgID, state, callErr)
		return callErr
	}

	o.succeed(orgID, state, func(s *SignupSession) {
		s.PIN = pin
		s.State = StateRegistered
	})
	return nil
}

// Subscribe subscribes the application to the business account's event feed,
// then runs the branch-specific follow-up automatically.
func (o *Orchestrator) Subscribe(ctx context.Context, orgID string) error {
	var wabaID, token string
	var branch OnboardingBranch
	state, err := o.begin(orgID, func(s *SignupSession) error {
		if s.Branch == BranchUnknown {
			return fmt.Errorf("%w: onboarding branch", ErrMissingSessionData)
		}
		if s.WabaID == "" || s.AccessToken == "" {
			return fmt.Errorf("%w: business account id and access token", ErrMissingSessionData)
		}
		wabaID = s.WabaID
		token = s.AccessToken
		branch = s.Branch
		return nil
	}, StateRegistered)
	if err != nil {
		return err
	}

	callErr := o.graph.SubscribeApp(ctx, wabaID, token)
	if callErr != nil {
		o.fail(orgID, state, callErr)
		return callErr
	}

	o.succeed(orgID, state, func(s *SignupSession) {
		if s.Branch == BranchFresh {
			s.State = StateFetchingPhone
		} else {
			s.State = StateCreatingChannel
		}
	})

	if branch == BranchFresh {
		return o.FetchPhoneNumbers(ctx, orgID)
	}
	return o.CreateChannel(ctx, orgID)
}

// FetchPhoneNumbers lists the account's phone numbers so the user can pick
// one. An empty list is a failure, not a silent advance.
func (o *Orchestrator) FetchPhoneNumbers(ctx context.Context, orgID string) error {
	var wabaID, token string
	state, err := o.begin(orgID, func(s *SignupSession) error {
		wabaID = s.WabaID
		token = s.AccessToken
		return nil
	}, StateFetchingPhone)
	if err != nil {
		return err
	}

	numbers, callErr := o.graph.ListPhoneNumbers(ctx, wabaID, token)
	if callErr == nil && len(numbers) == 0 {
		callErr = ErrNoPhoneNumbers
	}
	if callErr != nil {
		o.fail(orgID, state, callErr)
		return callErr
	}

	o.succeed(orgID, state, func(s *SignupSession) {
		s.PhoneNumbers = numbers
		s.State = StateConfirmingPhone
	})
	return nil
}

// ConfirmPhone stores the user's number choice and creates the channel
func (o *Orchestrator) ConfirmPhone(ctx context.Context, orgID, phoneNumber string) error {
	state, err := o.begin(orgID, func(s *SignupSession) error {
		for _, n := range s.PhoneNumbers {
			if n.DisplayPhoneNumber == phoneNumber {
				return nil
			}
		}
		return ErrPhoneNotOffered
	}, StateConfirmingPhone)
	if err != nil {
		return err
	}

	o.succeed(orgID, state, func(s *SignupSession) {
		s.SelectedPhoneNumber = phoneNumber
		s.State = StateCreatingChannel
	})
	return o.CreateChannel(ctx, orgID)
}

// CreateChannel creates the backend channel resource. The phone number comes
// from the user's selection on the fresh branch and from a platform lookup on
// the imported branch; both are sanitized once, right before the call. A
// channel created by an earlier attempt is never created twice.
func (o *Orchestrator) CreateChannel(ctx context.Context, orgID string) error {
	var (
		branch                        OnboardingBranch
		phoneNumberID, wabaID, token  string
		selectedPhone, existingChanID string
	)
	state, err := o.begin(orgID, func(s *SignupSession) error {
		if s.ChannelID != "" {
			existingChanID = s.ChannelID
			return nil
		}
		if s.WabaID == "" || s.PhoneNumberID == "" || s.AccessToken == "" {
			return fmt.Errorf("%w: waba id, phone number id and access token", ErrMissingSessionData)
		}
		if s.Branch == BranchFresh && s.SelectedPhoneNumber == "" {
			return fmt.Errorf("%w: selected phone number", ErrMissingSessionData)
		}
		branch = s.Branch
		phoneNumberID = s.PhoneNumberID
		wabaID = s.WabaID
		token = s.AccessToken
		selectedPhone = s.SelectedPhoneNumber
		return nil
	}, StateCreatingChannel)
	if err != nil {
		return err
	}

	if existingChanID != "" {
		o.succeed(orgID, state, func(s *SignupSession) {
			s.State = StateSelectingAssistant
		})
		return nil
	}

	var rawPhone string
	var callErr error
	if branch == BranchImported {
		var details *GraphPhoneNumber
		details, callErr = o.graph.GetPhoneNumber(ctx, phoneNumberID, token)
		if callErr == nil {
			rawPhone = details.DisplayPhoneNumber
		}
	} else {
		rawPhone = selectedPhone
	}

	var channel *models.Channel
	if callErr == nil {
		channel, callErr = o.store.CreateChannel(&models.Channel{
			OrganizationID: orgID,
			WabaID:         wabaID,
			PhoneNumber:    utils.SanitizePhoneNumber(rawPhone),
			PhoneNumberID:  phoneNumberID,
			AccessToken:    token,
			Status:         models.ChannelStatusPending,
		})
	}
	if callErr != nil {
		o.fail(orgID, state, callErr)
		return callErr
	}

	o.succeed(orgID, state, func(s *SignupSession) {
		s.ChannelID = channel.ChannelID
		s.State = StateSelectingAssistant
	})
	log.Printf("Channel %s provisioned for organization %s", channel.ChannelID, orgID)
	return nil
}

// SelectAssistant binds the chosen assistant and creates the app service
func (o *Orchestrator) SelectAssistant(ctx context.Context, orgID, assistantID string) error {
	assistant, err := o.store.GetAssistant(assistantID)
	if err != nil || assistant.OrganizationID != orgID {
		return fmt.Errorf("assistant %s not found for organization", assistantID)
	}

	state, err := o.begin(orgID, nil, StateSelectingAssistant)
	if err != nil {
		return err
	}

	o.succeed(orgID, state, func(s *SignupSession) {
		s.SelectedAssistantID = assistantID
		s.State = StateCreatingAppService
	})
	return o.CreateAppService(ctx, orgID)
}

// CreateAppService creates the app service binding channel and assistant.
// On the fresh branch this completes the flow; the imported branch continues
// into the non-blocking sync tail.
func (o *Orchestrator) CreateAppService(ctx context.Context, orgID string) error {
	var (
		branch                 OnboardingBranch
		channelID, assistantID string
		existingAppServiceID   string
	)
	state, err := o.begin(orgID, func(s *SignupSession) error {
		branch = s.Branch
		if s.AppServiceID != "" {
			existingAppServiceID = s.AppServiceID
			return nil
		}
		if s.ChannelID == "" || s.SelectedAssistantID == "" {
			return fmt.Errorf("%w: channel id and assistant id", ErrMissingSessionData)
		}
		channelID = s.ChannelID
		assistantID = s.SelectedAssistantID
		return nil
	}, StateCreatingAppService)
	if err != nil {
		return err
	}

	if existingAppServiceID != "" {
		o.finishAppService(orgID, state, branch, "")
		return nil
	}

	channel, callErr := o.store.GetChannel(channelID)
	var appService *models.AppService
	if callErr == nil {
		appService, callErr = o.store.CreateAppService(&models.AppService{
			OrganizationID: orgID,
			ChannelID:      channelID,
			PhoneNumber:    channel.PhoneNumber,
			AssistantID:    assistantID,
		})
	}
	if callErr != nil {
		o.fail(orgID, state, callErr)
		return callErr
	}

	if err := o.store.UpdateChannelStatus(channelID, models.ChannelStatusRegistered); err != nil {
		log.Printf("Failed to mark channel %s registered: %v", channelID, err)
	}

	o.sessions.Update(orgID, func(s *SignupSession) error {
		s.AppServiceID = appService.AppServiceID
		return nil
	})
	o.finishAppService(orgID, state, branch, channel.PhoneNumber)
	log.Printf("App service %s created for organization %s", appService.AppServiceID, orgID)
	return nil
}

func (o *Orchestrator) finishAppService(orgID string, state SignupState, branch OnboardingBranch, phoneNumber string) {
	o.succeed(orgID, state, func(s *SignupSession) {
		if s.Branch == BranchImported {
			s.State = StateSyncingContacts
		} else {
			s.State = StateComplete
		}
	})

	if branch == BranchImported {
		go o.runSyncTail(orgID, phoneNumber)
	} else {
		o.notifyComplete(orgID, phoneNumber)
	}
}

// runSyncTail initiates the two best-effort sync jobs in order. Failures are
// recorded and logged but never prevent the session from completing; the jobs
// themselves finish out-of-band.
func (o *Orchestrator) runSyncTail(orgID, phoneNumber string) {
	ctx := context.Background()

	o.initiateSync(ctx, orgID, SyncJobContacts)
	time.Sleep(o.syncDelay)
	o.sessions.Update(orgID, func(s *SignupSession) error {
		if s.State == StateSyncingContacts {
			s.State = StateSyncingHistory
		}
		return nil
	})

	o.initiateSync(ctx, orgID, SyncJobHistory)
	time.Sleep(o.syncDelay)
	o.sessions.Update(orgID, func(s *SignupSession) error {
		if s.State == StateSyncingHistory {
			s.State = StateComplete
		}
		return nil
	})

	o.notifyComplete(orgID, phoneNumber)
}

func (o *Orchestrator) initiateSync(ctx context.Context, orgID string, job SyncJobType) {
	var phoneNumberID, token string
	if err := o.sessions.Update(orgID, func(s *SignupSession) error {
		phoneNumberID = s.PhoneNumberID
		token = s.AccessToken
		return nil
	}); err != nil {
		return // session discarded mid-tail
	}

	requestID, err := o.syncer.Initiate(ctx, phoneNumberID, token, job)
	o.sessions.Update(orgID, func(s *SignupSession) error {
		if err != nil {
			s.SyncErrors[job] = err.Error()
			log.Printf("Signup %s: %s sync initiation failed: %v", s.SessionID, job, err)
		} else {
			s.SyncJobIDs[job] = requestID
			delete(s.SyncErrors, job)
			log.Printf("Signup %s: %s sync accepted (request_id=%s)", s.SessionID, job, requestID)
		}
		return nil
	})
}

// RetrySync re-issues one sync job's initiation call. Each job retries
// independently and only by explicit user action.
func (o *Orchestrator) RetrySync(ctx context.Context, orgID string, job SyncJobType) error {
	if job != SyncJobContacts && job != SyncJobHistory {
		return fmt.Errorf("unknown sync job type: %s", job)
	}

	// snapshot, not the live session: the sync tail may be advancing State
	// concurrently
	session, err := o.sessions.Snapshot(orgID)
	if err != nil {
		return err
	}
	switch session.State {
	case StateSyncingContacts, StateSyncingHistory, StateComplete:
	default:
		return ErrSyncNotStarted
	}

	o.initiateSync(ctx, orgID, job)

	snapshot, err := o.sessions.Snapshot(orgID)
	if err != nil {
		return err
	}
	if reason, failed := snapshot.SyncErrors[job]; failed {
		return fmt.Errorf("%s sync initiation failed: %s", job, reason)
	}
	return nil
}

// Restart discards the session and returns the flow to the initial state
func (o *Orchestrator) Restart(orgID string) error {
	if err := o.sessions.Update(orgID, func(s *SignupSession) error {
		if s.busy {
			return ErrOperationInFlight
		}
		return nil
	}); err != nil {
		return err
	}
	o.sessions.Delete(orgID)
	return nil
}

// begin marks the current state's attempt in flight when the session sits in
// one of the allowed states, no other transition is running, and validate
// passes. Validation failures leave no attempt behind.
func (o *Orchestrator) begin(orgID string, validate func(*SignupSession) error, allowed ...SignupState) (SignupState, error) {
	var current SignupState
	err := o.sessions.Update(orgID, func(s *SignupSession) error {
		if s.busy {
			return ErrOperationInFlight
		}
		ok := false
		for _, state := range allowed {
			if s.State == state {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrInvalidState, s.State)
		}
		if validate != nil {
			if err := validate(s); err != nil {
				return err
			}
		}
		current = s.State
		s.busy = true
		s.Attempts[s.State] = &Attempt{Status: AttemptInFlight}
		return nil
	})
	return current, err
}

// fail records the attempt outcome and keeps the session in place so the
// user can retry the same call
func (o *Orchestrator) fail(orgID string, state SignupState, callErr error) {
	o.sessions.Update(orgID, func(s *SignupSession) error {
		s.busy = false
		s.Attempts[state] = &Attempt{Status: AttemptFailed, Error: callErr.Error()}
		return nil
	})
}

// succeed records the attempt outcome and applies the forward transition
func (o *Orchestrator) succeed(orgID string, state SignupState, advance func(*SignupSession)) {
	o.sessions.Update(orgID, func(s *SignupSession) error {
		s.busy = false
		s.Attempts[state] = &Attempt{Status: AttemptSucceeded}
		advance(s)
		return nil
	})
}

func (o *Orchestrator) notifyComplete(orgID, phoneNumber string) {
	log.Printf("✅ Provisioning complete for organization %s", orgID)
	if o.notifier == nil {
		return
	}
	if err := o.notifier.NotifyProvisioned(orgID, phoneNumber); err != nil {
		log.Printf("Failed to send provisioning notification: %v", err)
	}
}
