package storage

import (
	"fmt"
	"sync"

	"github.com/talka-ai/talka-backend/internal/models"
	"github.com/talka-ai/talka-backend/internal/utils"
)

// MemoryStore holds all data in memory (for tests and local development)
type MemoryStore struct {
	channels    map[string]*models.Channel
	appServices map[string]*models.AppService
	assistants  map[string]*models.Assistant

	channelMu    sync.RWMutex
	appServiceMu sync.RWMutex
	assistantMu  sync.RWMutex
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		channels:    make(map[string]*models.Channel),
		appServices: make(map[string]*models.AppService),
		assistants:  make(map[string]*models.Assistant),
	}
}

// Channel operations

func (m *MemoryStore) CreateChannel(channel *models.Channel) (*models.Channel, error) {
	m.channelMu.Lock()
	defer m.channelMu.Unlock()

	if channel.ChannelID == "" {
		channel.ChannelID = utils.GenerateID("ch")
	}
	if channel.Status == "" {
		channel.Status = models.ChannelStatusPending
	}
	for _, existing := range m.channels {
		if existing.OrganizationID == channel.OrganizationID && existing.PhoneNumberID == channel.PhoneNumberID {
			return nil, fmt.Errorf("channel already exists for phone number %s", channel.PhoneNumberID)
		}
	}

	m.channels[channel.ChannelID] = channel
	return channel, nil
}

func (m *MemoryStore) GetChannel(channelID string) (*models.Channel, error) {
	m.channelMu.RLock()
	defer m.channelMu.RUnlock()

	channel, exists := m.channels[channelID]
	if !exists {
		return nil, fmt.Errorf("channel not found")
	}
	return channel, nil
}

func (m *MemoryStore) GetChannelsByOrganization(orgID string) ([]*models.Channel, error) {
	m.channelMu.RLock()
	defer m.channelMu.RUnlock()

	channels := []*models.Channel{}
	for _, channel := range m.channels {
		if channel.OrganizationID == orgID {
			channels = append(channels, channel)
		}
	}
	return channels, nil
}

func (m *MemoryStore) UpdateChannelStatus(channelID string, status string) error {
	m.channelMu.Lock()
	defer m.channelMu.Unlock()

	channel, exists := m.channels[channelID]
	if !exists {
		return fmt.Errorf("channel not found")
	}
	channel.Status = status
	return nil
}

// AppService operations

func (m *MemoryStore) CreateAppService(appService *models.AppService) (*models.AppService, error) {
	m.appServiceMu.Lock()
	defer m.appServiceMu.Unlock()

	if appService.AppServiceID == "" {
		appService.AppServiceID = utils.GenerateID("as")
	}

	m.appServices[appService.AppServiceID] = appService
	return appService, nil
}

func (m *MemoryStore) GetAppService(appServiceID string) (*models.AppService, error) {
	m.appServiceMu.RLock()
	defer m.appServiceMu.RUnlock()

	appService, exists := m.appServices[appServiceID]
	if !exists {
		return nil, fmt.Errorf("app service not found")
	}
	return appService, nil
}

func (m *MemoryStore) GetAppServicesByOrganization(orgID string) ([]*models.AppService, error) {
	m.appServiceMu.RLock()
	defer m.appServiceMu.RUnlock()

	appServices := []*models.AppService{}
	for _, appService := range m.appServices {
		if appService.OrganizationID == orgID {
			appServices = append(appServices, appService)
		}
	}
	return appServices, nil
}

// Assistant operations

func (m *MemoryStore) CreateAssistant(assistant *models.Assistant) (*models.Assistant, error) {
	m.assistantMu.Lock()
	defer m.assistantMu.Unlock()

	if assistant.AssistantID == "" {
		assistant.AssistantID = utils.GenerateID("asst")
	}

	m.assistants[assistant.AssistantID] = assistant
	return assistant, nil
}

func (m *MemoryStore) GetAssistant(assistantID string) (*models.Assistant, error) {
	m.assistantMu.RLock()
	defer m.assistantMu.RUnlock()

	assistant, exists := m.assistants[assistantID]
	if !exists {
		return nil, fmt.Errorf("assistant not found")
	}
	return assistant, nil
}

func (m *MemoryStore) GetAssistantsByOrganization(orgID string) ([]*models.Assistant, error) {
	m.assistantMu.RLock()
	defer m.assistantMu.RUnlock()

	assistants := []*models.Assistant{}
	for _, assistant := range m.assistants {
		if assistant.OrganizationID == orgID {
			assistants = append(assistants, assistant)
		}
	}
	return assistants, nil
}
