package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a scheduled broadcast job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSent       JobStatus = "sent"
	JobStatusCancelled  JobStatus = "cancelled"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusSent, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether a job in this status is immutable.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSent || s == JobStatusCancelled
}

// CanTransitionTo reports whether s -> next is a legal edge of the job state machine.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusCancelled
	case JobStatusProcessing:
		return next == JobStatusSent || next == JobStatusPending
	}
	return false
}

func ParseJobStatusFromString(s string) (JobStatus, error) {
	st := JobStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid job status %q", ErrValidation, s)
	}
	return st, nil
}

// ActiveJobStatuses are the statuses listed on the authoring surface.
var ActiveJobStatuses = []JobStatus{JobStatusPending, JobStatusProcessing}

// Content limits for authored broadcasts (in characters).
const (
	MaxJobTitle = 100
	MaxJobBody  = 2000
)

// ScheduledJob is a broadcast notification queued for delivery at ScheduledAt.
type ScheduledJob struct {
	ID          string
	Title       string
	Body        string
	ScheduledAt time.Time
	Status      JobStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (j *ScheduledJob) Validate(now time.Time) error {
	if strings.TrimSpace(j.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(j.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if n := len([]rune(j.Title)); n > MaxJobTitle {
		return fmt.Errorf("%w: title exceeds %d characters (got %d)", ErrValidation, MaxJobTitle, n)
	}
	if n := len([]rune(j.Body)); n > MaxJobBody {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxJobBody, n)
	}
	if j.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduledAt is required", ErrValidation)
	}
	if !j.ScheduledAt.After(now) {
		return fmt.Errorf("%w: scheduledAt must be in the future", ErrValidation)
	}
	return nil
}
