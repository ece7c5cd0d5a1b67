package queue

import (
	"fmt"
	"strings"
	"time"
)

// TriggerMessage is the broker payload asking a worker to run one dispatch pass.
type TriggerMessage struct {
	TriggerID   string    `json:"triggerId"`
	Source      string    `json:"source"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (m TriggerMessage) Validate() error {
	if strings.TrimSpace(m.TriggerID) == "" {
		return fmt.Errorf("triggerId is required")
	}
	if strings.TrimSpace(m.Source) == "" {
		return fmt.Errorf("source is required")
	}
	if m.RequestedAt.IsZero() {
		return fmt.Errorf("requestedAt is required")
	}
	return nil
}
