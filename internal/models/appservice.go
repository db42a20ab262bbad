package models

import (
	"gorm.io/gorm"
)

// AppService binds a provisioned channel to an assistant for one
// organization. It is the unit the rest of the product operates on once
// onboarding has finished.
type AppService struct {
	gorm.Model
	AppServiceID   string `json:"app_service_id" gorm:"uniqueIndex"`
	OrganizationID string `json:"organization_id" gorm:"index"`
	ChannelID      string `json:"channel_id"`
	PhoneNumber    string `json:"phone_number"`
	AssistantID    string `json:"assistant_id"`
}
