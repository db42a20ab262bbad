package storage

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/talka-ai/talka-backend/internal/models"
	"github.com/talka-ai/talka-backend/internal/utils"
)

// DatabaseStore implements Store backed by GORM
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a new database-backed storage
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Channel operations

func (d *DatabaseStore) CreateChannel(channel *models.Channel) (*models.Channel, error) {
	if channel.ChannelID == "" {
		channel.ChannelID = utils.GenerateID("ch")
	}
	if channel.Status == "" {
		channel.Status = models.ChannelStatusPending
	}

	var count int64
	d.db.Model(&models.Channel{}).
		Where("organization_id = ? AND phone_number_id = ?", channel.OrganizationID, channel.PhoneNumberID).
		Count(&count)
	if count > 0 {
		return nil, fmt.Errorf("channel already exists for phone number %s", channel.PhoneNumberID)
	}

	if err := d.db.Create(channel).Error; err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	return channel, nil
}

func (d *DatabaseStore) GetChannel(channelID string) (*models.Channel, error) {
	var channel models.Channel
	if err := d.db.Where("channel_id = ?", channelID).First(&channel).Error; err != nil {
		return nil, fmt.Errorf("channel not found")
	}
	return &channel, nil
}

func (d *DatabaseStore) GetChannelsByOrganization(orgID string) ([]*models.Channel, error) {
	var channels []*models.Channel
	if err := d.db.Where("organization_id = ?", orgID).Order("created_at DESC").Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

func (d *DatabaseStore) UpdateChannelStatus(channelID string, status string) error {
	result := d.db.Model(&models.Channel{}).Where("channel_id = ?", channelID).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("channel not found")
	}
	return nil
}

// AppService operations

func (d *DatabaseStore) CreateAppService(appService *models.AppService) (*models.AppService, error) {
	if appService.AppServiceID == "" {
		appService.AppServiceID = utils.GenerateID("as")
	}
	if err := d.db.Create(appService).Error; err != nil {
		return nil, fmt.Errorf("failed to create app service: %w", err)
	}
	return appService, nil
}

func (d *DatabaseStore) GetAppService(appServiceID string) (*models.AppService, error) {
	var appService models.AppService
	if err := d.db.Where("app_service_id = ?", appServiceID).First(&appService).Error; err != nil {
		return nil, fmt.Errorf("app service not found")
	}
	return &appService, nil
}

func (d *DatabaseStore) GetAppServicesByOrganization(orgID string) ([]*models.AppService, error) {
	var appServices []*models.AppService
	if err := d.db.Where("organization_id = ?", orgID).Order("created_at DESC").Find(&appServices).Error; err != nil {
		return nil, err
	}
	return appServices, nil
}

// Assistant operations

func (d *DatabaseStore) CreateAssistant(assistant *models.Assistant) (*models.Assistant, error) {
	if assistant.AssistantID == "" {
		assistant.AssistantID = utils.GenerateID("asst")
	}
	if err := d.db.Create(assistant).Error; err != nil {
		return nil, fmt.Errorf("failed to create assistant: %w", err)
	}
	return assistant, nil
}

func (d *DatabaseStore) GetAssistant(assistantID string) (*models.Assistant, error) {
	var assistant models.Assistant
	if err := d.db.Where("assistant_id = ?", assistantID).First(&assistant).Error; err != nil {
		return nil, fmt.Errorf("assistant not found")
	}
	return &assistant, nil
}

func (d *DatabaseStore) GetAssistantsByOrganization(orgID string) ([]*models.Assistant, error) {
	var assistants []*models.Assistant
	if err := d.db.Where("organization_id = ?", orgID).Order("created_at ASC").Find(&assistants).Error; err != nil {
		return nil, err
	}
	return assistants, nil
}
