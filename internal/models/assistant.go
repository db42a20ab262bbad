package models

import (
	"gorm.io/gorm"
)

// Assistant is a pre-existing tenant resource. Signup only fetches and binds
// assistants; creating them belongs to the assistant builder screens.
type Assistant struct {
	gorm.Model
	AssistantID    string `json:"assistant_id" gorm:"uniqueIndex"`
	OrganizationID string `json:"organization_id" gorm:"index"`
	Name           string `json:"name"`
	Description    string `json:"description"`
}
