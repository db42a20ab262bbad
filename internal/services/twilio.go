package services

import (
	"fmt"
	"log"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/talka-ai/talka-backend/internal/config"
)

// TwilioService sends operational WhatsApp notifications
type TwilioService struct {
	client   *twilio.RestClient
	from     string
	notifyTo string
}

// NewTwilioService creates a new Twilio service instance
func NewTwilioService(cfg config.Twilio) (*TwilioService, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioService{
		client:   client,
		from:     cfg.From,
		notifyTo: cfg.NotifyTo,
	}, nil
}

// SendWhatsAppMessage sends a WhatsApp message via Twilio
func (t *TwilioService) SendWhatsAppMessage(to string, message string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(fmt.Sprintf("whatsapp:%s", to))
	params.SetBody(message)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("❌ Failed to send WhatsApp message: %v", err)
		return err
	}

	log.Printf("✅ WhatsApp message sent! SID: %s", *resp.Sid)
	return nil
}

// NotifyProvisioned tells the ops contact that an organization finished
// channel provisioning. Best effort; callers log and move on.
func (t *TwilioService) NotifyProvisioned(orgID, phoneNumber string) error {
	if t.notifyTo == "" {
		return nil
	}

	message := fmt.Sprintf("New WhatsApp channel provisioned\n\nOrganization: %s\nPhone: %s", orgID, phoneNumber)
	return t.SendWhatsAppMessage(t.notifyTo, message)
}
