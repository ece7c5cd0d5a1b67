package domain

import "time"

// InboxType is the category of an in-app inbox entry.
type InboxType string

const (
	InboxTypeSystem    InboxType = "system"
	InboxTypeBroadcast InboxType = "broadcast"
	InboxTypeComment   InboxType = "comment"
	InboxTypeReport    InboxType = "report"
)

func (t InboxType) String() string { return string(t) }

// InboxPayload is the rendered content of an inbox entry.
type InboxPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	JobID string `json:"jobId,omitempty"`
}

// InboxEntry is one notification in a recipient's in-app inbox.
type InboxEntry struct {
	ID              string
	Type            InboxType
	RecipientUserID string
	OriginUserID    *string
	JobID           *string
	Payload         InboxPayload
	IsRead          bool
	CreatedAt       time.Time
}
