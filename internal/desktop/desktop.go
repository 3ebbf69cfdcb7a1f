// Package desktop describes the platform capability that shows transient
// alerts outside the application window.
package desktop

import (
	"context"
	"errors"
	"time"
)

// Permission is the platform's tri-state answer to "may we show alerts".
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// Valid reports whether p is one of the three known states.
func (p Permission) Valid() bool {
	switch p {
	case PermissionGranted, PermissionDenied, PermissionDefault:
		return true
	}
	return false
}

// ErrUnsupported is returned by platforms that cannot show alerts.
var ErrUnsupported = errors.New("desktop notifications not supported")

// Alert is one transient desktop notification. Clicking it should focus the
// application and, when URL is set, navigate there.
type Alert struct {
	NotificationID string
	Tag            string
	Title          string
	Body           string
	URL            string
	// Duration is how long the alert stays up before it is dismissed.
	Duration time.Duration
}

// Platform is the desktop-notification capability.
type Platform interface {
	Supported() bool
	Permission() Permission
	// RequestPermission asks the user for permission. The outcome is
	// only observable through later Permission calls.
	RequestPermission(ctx context.Context) error
	Show(ctx context.Context, a Alert) error
}

// Unsupported is the Platform for environments with no alert capability.
type Unsupported struct{}

func (Unsupported) Supported() bool        { return false }
func (Unsupported) Permission() Permission { return PermissionDenied }

func (Unsupported) RequestPermission(context.Context) error { return ErrUnsupported }
func (Unsupported) Show(context.Context, Alert) error       { return ErrUnsupported }
