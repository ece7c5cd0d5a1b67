package provider

import (
	"context"

	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
)

// Gateway is the outbound push delivery port. One call addresses one device token.
type Gateway interface {
	Send(ctx context.Context, msg Message) (*Response, error)
}

// Message is a single push addressed to one device.
type Message struct {
	Token    string
	Platform domain.Platform
	Title    string
	Body     string
	Data     map[string]string
}

// Response carries gateway call metadata for logs.
type Response struct {
	StatusCode int
	MessageID  string
}
