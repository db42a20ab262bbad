package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/talka-ai/talka-backend/internal/utils"
)

// SignupState names one step of the embedded-signup flow
type SignupState string

const (
	StateInitial            SignupState = "initial"
	StateCodeReceived       SignupState = "code_received"
	StateTokenReceived      SignupState = "token_received"
	StateRegistered         SignupState = "registered"
	StateFetchingPhone      SignupState = "fetching_phone"
	StateConfirmingPhone    SignupState = "confirming_phone"
	StateCreatingChannel    SignupState = "creating_channel"
	StateSelectingAssistant SignupState = "selecting_assistant"
	StateCreatingAppService SignupState = "creating_app_service"
	StateSyncingContacts    SignupState = "syncing_contacts"
	StateSyncingHistory     SignupState = "syncing_history"
	StateComplete           SignupState = "complete"
)

// OnboardingBranch selects which path the flow follows after consent
type OnboardingBranch string

const (
	BranchUnknown  OnboardingBranch = ""
	BranchFresh    OnboardingBranch = "fresh"    // new number, PIN registration required
	BranchImported OnboardingBranch = "imported" // existing business app, adds a sync phase
)

// AttemptStatus is the lifecycle of one state-scoped external call
type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInFlight   AttemptStatus = "in_flight"
	AttemptFailed     AttemptStatus = "failed"
	AttemptSucceeded  AttemptStatus = "succeeded"
)

// Attempt records the outcome of the external call tied to one state.
// Retrying is always Failed -> InFlight on the same state, never a rewind.
type Attempt struct {
	Status AttemptStatus `json:"status"`
	Error  string        `json:"error,omitempty"`
}

// SyncJobType identifies one of the two best-effort background sync jobs
type SyncJobType string

const (
	SyncJobContacts SyncJobType = "contacts"
	SyncJobHistory  SyncJobType = "history"
)

// SignupSession is the volatile working state of one onboarding attempt.
// It lives in memory only; a completed or abandoned flow discards it.
type SignupSession struct {
	SessionID      string           `json:"session_id"`
	OrganizationID string           `json:"organization_id"`
	State          SignupState      `json:"state"`
	Branch         OnboardingBranch `json:"branch"`

	GrantCode   string `json:"-"`
	AccessToken string `json:"-"`
	PIN         string `json:"-"`

	PhoneNumberID string `json:"phone_number_id,omitempty"`
	WabaID        string `json:"waba_id,omitempty"`

	PhoneNumbers        []GraphPhoneNumber `json:"phone_numbers,omitempty"`
	SelectedPhoneNumber string             `json:"selected_phone_number,omitempty"`
	SelectedAssistantID string             `json:"selected_assistant_id,omitempty"`

	ChannelID    string `json:"channel_id,omitempty"`
	AppServiceID string `json:"app_service_id,omitempty"`

	SyncJobIDs map[SyncJobType]string `json:"sync_job_ids,omitempty"`
	SyncErrors map[SyncJobType]string `json:"sync_errors,omitempty"`

	Attempts map[SignupState]*Attempt `json:"attempts"`

	// StatusMessage surfaces informational widget events (CANCEL/ERROR)
	// without touching the state machine.
	StatusMessage string `json:"status_message,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`

	// busy guards against overlapping transitions for the same session
	busy bool
}

// Busy reports whether a transition is currently in flight
func (s *SignupSession) Busy() bool {
	return s.busy
}

func newSignupSession(orgID string) *SignupSession {
	return &SignupSession{
		SessionID:      utils.GenerateID("sgn"),
		OrganizationID: orgID,
		State:          StateInitial,
		Branch:         BranchUnknown,
		SyncJobIDs:     make(map[SyncJobType]string),
		SyncErrors:     make(map[SyncJobType]string),
		Attempts:       make(map[SignupState]*Attempt),
		CreatedAt:      time.Now(),
		LastActive:     time.Now(),
	}
}

// SignupManager owns the signup sessions, one active attempt per
// organization. All mutation goes through Update so the orchestrator stays
// the single writer.
type SignupManager struct {
	sessions   map[string]*SignupSession
	mu         sync.RWMutex
	sessionTTL time.Duration
}

// NewSignupManager creates a new signup session manager
func NewSignupManager(sessionTTL time.Duration) *SignupManager {
	return &SignupManager{
		sessions:   make(map[string]*SignupSession),
		sessionTTL: sessionTTL,
	}
}

// GetOrCreate returns the organization's active session, creating one in the
// initial state if none exists
func (sm *SignupManager) GetOrCreate(orgID string) *SignupSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if session, exists := sm.sessions[orgID]; exists {
		session.LastActive = time.Now()
		return session
	}

	session := newSignupSession(orgID)
	sm.sessions[orgID] = session
	log.Printf("Signup session %s created for organization %s", session.SessionID, orgID)
	return session
}

// Update applies fn to the organization's session under the manager lock.
// fn returning an error leaves whatever it already changed in place; callers
// use it for atomic check-and-set transitions.
func (sm *SignupManager) Update(orgID string, fn func(*SignupSession) error) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[orgID]
	if !exists {
		return fmt.Errorf("no signup session for organization %s", orgID)
	}

	session.LastActive = time.Now()
	return fn(session)
}

// Snapshot returns a display copy of the session for the UI layer
func (sm *SignupManager) Snapshot(orgID string) (SignupSession, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[orgID]
	if !exists {
		return SignupSession{}, fmt.Errorf("no signup session for organization %s", orgID)
	}

	copied := *session
	copied.Attempts = make(map[SignupState]*Attempt, len(session.Attempts))
	for state, attempt := range session.Attempts {
		a := *attempt
		copied.Attempts[state] = &a
	}
	copied.SyncJobIDs = make(map[SyncJobType]string, len(session.SyncJobIDs))
	for job, id := range session.SyncJobIDs {
		copied.SyncJobIDs[job] = id
	}
	copied.SyncErrors = make(map[SyncJobType]string, len(session.SyncErrors))
	for job, reason := range session.SyncErrors {
		copied.SyncErrors[job] = reason
	}
	return copied, nil
}

// Delete discards the organization's session (flow restart)
func (sm *SignupManager) Delete(orgID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if session, exists := sm.sessions[orgID]; exists {
		log.Printf("Signup session %s discarded for organization %s", session.SessionID, orgID)
		delete(sm.sessions, orgID)
	}
}

// ActiveCount returns the number of live sessions (for monitoring)
func (sm *SignupManager) ActiveCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupExpired drops sessions idle past the TTL and returns how many were
// removed. Completed sessions are kept until the user restarts; abandoned
// ones age out here.
func (sm *SignupManager) CleanupExpired() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-sm.sessionTTL)
	for orgID, session := range sm.sessions {
		if session.LastActive.Before(cutoff) && !session.busy {
			delete(sm.sessions, orgID)
			removed++
			log.Printf("Expired signup session %s for organization %s", session.SessionID, orgID)
		}
	}
	return removed
}
