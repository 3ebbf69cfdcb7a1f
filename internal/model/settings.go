package model

import "time"

type EmailFrequency string

const (
	EmailImmediate EmailFrequency = "immediate"
	EmailDaily     EmailFrequency = "daily"
	EmailWeekly    EmailFrequency = "weekly"
)

// Valid reports whether f is a known frequency.
func (f EmailFrequency) Valid() bool {
	switch f {
	case EmailImmediate, EmailDaily, EmailWeekly:
		return true
	}
	return false
}

// CategorySettings toggles delivery channels for one category.
type CategorySettings struct {
	Enabled        bool `json:"enabled"`
	DesktopEnabled bool `json:"desktopEnabled"`
	EmailEnabled   bool `json:"emailEnabled"`
}

// NotificationSettings is the process-wide delivery configuration.
type NotificationSettings struct {
	DesktopNotifications bool           `json:"desktopNotifications"`
	EmailNotifications   bool           `json:"emailNotifications"`
	EmailFrequency       EmailFrequency `json:"emailFrequency" validate:"required,oneof=immediate daily weekly"`
	// DesktopNotificationDuration is the auto-dismiss delay in milliseconds.
	DesktopNotificationDuration int                           `json:"desktopNotificationDuration" validate:"gte=0,lte=600000"`
	Categories                  map[Category]CategorySettings `json:"categories"`
}

// DefaultNotificationSettings returns the settings used on first run and
// whenever stored settings cannot be read.
func DefaultNotificationSettings() NotificationSettings {
	categories := make(map[Category]CategorySettings, len(Categories))
	for _, c := range Categories {
		categories[c] = CategorySettings{Enabled: true, DesktopEnabled: true, EmailEnabled: false}
	}
	categories[CategorySystem] = CategorySettings{Enabled: true, DesktopEnabled: true, EmailEnabled: true}
	return NotificationSettings{
		DesktopNotifications:        true,
		EmailNotifications:          false,
		EmailFrequency:              EmailImmediate,
		DesktopNotificationDuration: 5000,
		Categories:                  categories,
	}
}

// Clone returns a deep copy.
func (s NotificationSettings) Clone() NotificationSettings {
	categories := make(map[Category]CategorySettings, len(s.Categories))
	for k, v := range s.Categories {
		categories[k] = v
	}
	s.Categories = categories
	return s
}

// DesktopAllowed reports whether desktop delivery is on globally and for c.
func (s NotificationSettings) DesktopAllowed(c Category) bool {
	cs, ok := s.Categories[c]
	return s.DesktopNotifications && ok && cs.Enabled && cs.DesktopEnabled
}

// EmailAllowed reports whether email delivery is on globally and for c.
func (s NotificationSettings) EmailAllowed(c Category) bool {
	cs, ok := s.Categories[c]
	return s.EmailNotifications && ok && cs.Enabled && cs.EmailEnabled
}

// DesktopDuration is DesktopNotificationDuration as a time.Duration.
func (s NotificationSettings) DesktopDuration() time.Duration {
	return time.Duration(s.DesktopNotificationDuration) * time.Millisecond
}

// Complete returns a copy holding exactly the known categories. Categories
// missing from s are taken from the defaults.
func (s NotificationSettings) Complete() NotificationSettings {
	defaults := DefaultNotificationSettings()
	categories := make(map[Category]CategorySettings, len(Categories))
	for _, c := range Categories {
		if cs, ok := s.Categories[c]; ok {
			categories[c] = cs
		} else {
			categories[c] = defaults.Categories[c]
		}
	}
	s.Categories = categories
	return s
}
