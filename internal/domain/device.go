package domain

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the push delivery channel of a device.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

func (p Platform) String() string { return string(p) }

func (p Platform) IsValid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid:
		return true
	}
	return false
}

func ParsePlatformFromString(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid platform %q", ErrValidation, s)
	}
	return p, nil
}

// DeviceTarget is one installed app instance able to receive push messages.
type DeviceTarget struct {
	ID        string
	UserID    string
	Token     string
	Platform  Platform
	CreatedAt time.Time
}
