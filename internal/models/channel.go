package models

import (
	"gorm.io/gorm"
)

// Channel status values
const (
	ChannelStatusPending    = "pending"
	ChannelStatusRegistered = "registered"
)

// Channel stores one provisioned WhatsApp Cloud API channel owned by an
// organization: the business account, the phone number bound to it and the
// access credential obtained during embedded signup.
type Channel struct {
	gorm.Model
	ChannelID      string `json:"channel_id" gorm:"uniqueIndex"`
	OrganizationID string `json:"organization_id" gorm:"index"`
	WabaID         string `json:"waba_id"`
	PhoneNumber    string `json:"phone_number"`
	PhoneNumberID  string `json:"phone_number_id"`
	AccessToken    string `json:"-"` // never serialized in API responses
	Status         string `json:"status" gorm:"default:'pending'"`
}
