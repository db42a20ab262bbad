package storage

import (
	"github.com/talka-ai/talka-backend/internal/models"
)

var storeInstance Store

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	return storeInstance
}

// Store defines the interface for storage operations
type Store interface {
	// Channel operations
	CreateChannel(channel *models.Channel) (*models.Channel, error)
	GetChannel(channelID string) (*models.Channel, error)
	GetChannelsByOrganization(orgID string) ([]*models.Channel, error)
	UpdateChannelStatus(channelID string, status string) error

	// AppService operations
	CreateAppService(appService *models.AppService) (*models.AppService, error)
	GetAppService(appServiceID string) (*models.AppService, error)
	GetAppServicesByOrganization(orgID string) ([]*models.AppService, error)

	// Assistant operations
	CreateAssistant(assistant *models.Assistant) (*models.Assistant, error)
	GetAssistant(assistantID string) (*models.Assistant, error)
	GetAssistantsByOrganization(orgID string) ([]*models.Assistant, error)
}
