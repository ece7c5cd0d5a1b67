package repository

import (
	"time"

	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
	"gorm.io/datatypes"
)

// ScheduledJobModel is the persistence model for the scheduled_notifications table.
type ScheduledJobModel struct {
	ID          string           `gorm:"type:uuid;primaryKey"`
	Title       string           `gorm:"type:varchar(100);not null"`
	Body        string           `gorm:"type:text;not null"`
	ScheduledAt time.Time        `gorm:"not null"`
	Status      domain.JobStatus `gorm:"type:varchar(20);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ScheduledJobModel) TableName() string {
	return "scheduled_notifications"
}

// InboxEntryModel is the persistence model for the notifications (in-app inbox) table.
type InboxEntryModel struct {
	ID              string                                  `gorm:"type:uuid;primaryKey"`
	Type            domain.InboxType                        `gorm:"type:varchar(20);not null"`
	RecipientUserID string                                  `gorm:"type:varchar(64);not null"`
	OriginUserID    *string                                 `gorm:"type:varchar(64)"`
	JobID           *string                                 `gorm:"type:uuid"`
	Payload         datatypes.JSONType[domain.InboxPayload] `gorm:"not null"`
	IsRead          bool                                    `gorm:"not null;default:false"`
	CreatedAt       time.Time
}

func (InboxEntryModel) TableName() string {
	return "notifications"
}

// DeviceTargetModel is the persistence model for device_tokens.
type DeviceTargetModel struct {
	ID        string          `gorm:"type:uuid;primaryKey"`
	UserID    string          `gorm:"type:varchar(64);not null"`
	Token     string          `gorm:"type:varchar(512);not null;uniqueIndex"`
	Platform  domain.Platform `gorm:"type:varchar(10);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DeviceTargetModel) TableName() string {
	return "device_tokens"
}

// PreferenceModel is the persistence model for notification_preferences.
type PreferenceModel struct {
	UserID    string          `gorm:"type:varchar(64);primaryKey"`
	Category  domain.Category `gorm:"type:varchar(20);primaryKey"`
	Enabled   bool            `gorm:"not null"`
	UpdatedAt time.Time
}

func (PreferenceModel) TableName() string {
	return "notification_preferences"
}

// ProfileModel is the subset of the profiles table the dispatcher reads.
type ProfileModel struct {
	ID        string `gorm:"type:varchar(64);primaryKey"`
	Nickname  string `gorm:"type:varchar(50)"`
	CreatedAt time.Time
}

func (ProfileModel) TableName() string {
	return "profiles"
}

func jobModelFromDomain(j *domain.ScheduledJob) *ScheduledJobModel {
	if j == nil {
		return nil
	}

	return &ScheduledJobModel{
		ID:          j.ID,
		Title:       j.Title,
		Body:        j.Body,
		ScheduledAt: j.ScheduledAt,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func jobModelToDomain(m *ScheduledJobModel) *domain.ScheduledJob {
	if m == nil {
		return nil
	}

	return &domain.ScheduledJob{
		ID:          m.ID,
		Title:       m.Title,
		Body:        m.Body,
		ScheduledAt: m.ScheduledAt.UTC(),
		Status:      m.Status,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func inboxModelFromDomain(e *domain.InboxEntry) *InboxEntryModel {
	if e == nil {
		return nil
	}

	return &InboxEntryModel{
		ID:              e.ID,
		Type:            e.Type,
		RecipientUserID: e.RecipientUserID,
		OriginUserID:    e.OriginUserID,
		JobID:           e.JobID,
		Payload:         datatypes.NewJSONType(e.Payload),
		IsRead:          e.IsRead,
		CreatedAt:       e.CreatedAt,
	}
}

func inboxModelToDomain(m *InboxEntryModel) *domain.InboxEntry {
	if m == nil {
		return nil
	}

	return &domain.InboxEntry{
		ID:              m.ID,
		Type:            m.Type,
		RecipientUserID: m.RecipientUserID,
		OriginUserID:    m.OriginUserID,
		JobID:           m.JobID,
		Payload:         m.Payload.Data(),
		IsRead:          m.IsRead,
		CreatedAt:       m.CreatedAt.UTC(),
	}
}

func deviceModelFromDomain(d *domain.DeviceTarget) *DeviceTargetModel {
	if d == nil {
		return nil
	}

	return &DeviceTargetModel{
		ID:        d.ID,
		UserID:    d.UserID,
		Token:     d.Token,
		Platform:  d.Platform,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.CreatedAt,
	}
}

func deviceModelToDomain(m *DeviceTargetModel) *domain.DeviceTarget {
	if m == nil {
		return nil
	}

	return &domain.DeviceTarget{
		ID:        m.ID,
		UserID:    m.UserID,
		Token:     m.Token,
		Platform:  m.Platform,
		CreatedAt: m.CreatedAt.UTC(),
	}
}
