package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/conea/internal/model"
)

// Keys under which the notification store persists its two resources.
const (
	NotificationsKey = "conea_notifications"
	SettingsKey      = "conea_notification_settings"
)

// ErrCorrupt reports stored data that could not be decoded or validated.
var ErrCorrupt = errors.New("stored data is corrupt")

// NotificationStore persists the notification list and settings as JSON
// documents in Storage. Loads never fail outright: whenever stored data is
// missing or unusable they return the defaults, and the accompanying error
// (nil for a first run) says why.
type NotificationStore struct {
	storage Storage
	now     func() time.Time
}

func NewNotificationStore(storage Storage) *NotificationStore {
	return &NotificationStore{storage: storage, now: time.Now}
}

// LoadNotifications returns the stored list, or the seed list when nothing
// usable is stored. The returned slice is always safe to use.
func (s *NotificationStore) LoadNotifications() ([]model.Notification, error) {
	raw, err := s.storage.Get(NotificationsKey)
	if errors.Is(err, ErrNotFound) {
		return SeedNotifications(s.now()), nil
	}
	if err != nil {
		return SeedNotifications(s.now()), fmt.Errorf("load notifications: %w", err)
	}

	list, err := decodeNotifications(raw)
	if err != nil {
		return SeedNotifications(s.now()), fmt.Errorf("load notifications: %w", err)
	}
	return list, nil
}

// SaveNotifications overwrites the stored list in a single write.
func (s *NotificationStore) SaveNotifications(list []model.Notification) error {
	if list == nil {
		list = []model.Notification{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal notifications: %w", err)
	}
	if err := s.storage.Set(NotificationsKey, string(data)); err != nil {
		return fmt.Errorf("save notifications: %w", err)
	}
	return nil
}

// LoadSettings returns the stored settings, or the defaults when nothing
// usable is stored. A stored document missing a known category gets that
// category from the defaults; unknown categories are dropped.
func (s *NotificationStore) LoadSettings() (model.NotificationSettings, error) {
	raw, err := s.storage.Get(SettingsKey)
	if errors.Is(err, ErrNotFound) {
		return model.DefaultNotificationSettings(), nil
	}
	if err != nil {
		return model.DefaultNotificationSettings(), fmt.Errorf("load settings: %w", err)
	}

	settings, err := decodeSettings(raw)
	if err != nil {
		return model.DefaultNotificationSettings(), fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// SaveSettings overwrites the stored settings in a single write.
func (s *NotificationStore) SaveSettings(settings model.NotificationSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.storage.Set(SettingsKey, string(data)); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func decodeNotifications(raw string) ([]model.Notification, error) {
	var list []model.Notification
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if list == nil {
		return nil, fmt.Errorf("%w: not a list", ErrCorrupt)
	}

	seen := make(map[string]bool, len(list))
	for _, n := range list {
		switch {
		case n.ID == "":
			return nil, fmt.Errorf("%w: notification without id", ErrCorrupt)
		case seen[n.ID]:
			return nil, fmt.Errorf("%w: duplicate id %q", ErrCorrupt, n.ID)
		case !n.Type.Valid():
			return nil, fmt.Errorf("%w: notification %q has type %q", ErrCorrupt, n.ID, n.Type)
		case !n.Category.Valid():
			return nil, fmt.Errorf("%w: notification %q has category %q", ErrCorrupt, n.ID, n.Category)
		case !n.Priority.Valid():
			return nil, fmt.Errorf("%w: notification %q has priority %q", ErrCorrupt, n.ID, n.Priority)
		}
		seen[n.ID] = true
	}
	return list, nil
}

// storedSettings has pointer globals so a document that omits one is
// detected rather than silently zeroed.
type storedSettings struct {
	DesktopNotifications        *bool                                     `json:"desktopNotifications"`
	EmailNotifications          *bool                                     `json:"emailNotifications"`
	EmailFrequency              model.EmailFrequency                      `json:"emailFrequency"`
	DesktopNotificationDuration *int                                      `json:"desktopNotificationDuration"`
	Categories                  map[model.Category]model.CategorySettings `json:"categories"`
}

func decodeSettings(raw string) (model.NotificationSettings, error) {
	var stored storedSettings
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return model.NotificationSettings{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	switch {
	case stored.DesktopNotifications == nil, stored.EmailNotifications == nil, stored.DesktopNotificationDuration == nil:
		return model.NotificationSettings{}, fmt.Errorf("%w: missing global toggle", ErrCorrupt)
	case !stored.EmailFrequency.Valid():
		return model.NotificationSettings{}, fmt.Errorf("%w: email frequency %q", ErrCorrupt, stored.EmailFrequency)
	case *stored.DesktopNotificationDuration < 0:
		return model.NotificationSettings{}, fmt.Errorf("%w: negative desktop duration", ErrCorrupt)
	}

	settings := model.NotificationSettings{
		DesktopNotifications:        *stored.DesktopNotifications,
		EmailNotifications:          *stored.EmailNotifications,
		EmailFrequency:              stored.EmailFrequency,
		DesktopNotificationDuration: *stored.DesktopNotificationDuration,
		Categories:                  stored.Categories,
	}
	return settings.Complete(), nil
}

// SeedNotifications is the collection shown on first run or after the
// stored list turned out to be unreadable. Timestamps are relative to now.
func SeedNotifications(now time.Time) []model.Notification {
	return []model.Notification{
		{
			ID:        "seed-order-1",
			Type:      model.TypeOrder,
			Title:     "新規注文",
			Message:   "注文 #1024 を受け付けました。",
			Timestamp: now.Add(-5 * time.Minute),
			ActionURL: "/orders",
			Category:  model.CategoryOrders,
			Priority:  model.PriorityHigh,
		},
		{
			ID:        "seed-inventory-1",
			Type:      model.TypeInventory,
			Title:     "在庫不足",
			Message:   "商品 SKU-301 の在庫が残り 5 個です。",
			Timestamp: now.Add(-30 * time.Minute),
			ActionURL: "/inventory",
			Category:  model.CategoryInventory,
			Priority:  model.PriorityMedium,
		},
		{
			ID:        "seed-sales-1",
			Type:      model.TypeSales,
			Title:     "売上目標達成",
			Message:   "今月の売上目標を達成しました。",
			Timestamp: now.Add(-2 * time.Hour),
			Read:      true,
			Category:  model.CategorySales,
			Priority:  model.PriorityLow,
		},
		{
			ID:        "seed-system-1",
			Type:      model.TypeSystem,
			Title:     "メンテナンスのお知らせ",
			Message:   "今夜 2:00 から 3:00 までシステムメンテナンスを行います。",
			Timestamp: now.Add(-24 * time.Hour),
			Category:  model.CategorySystem,
		},
	}
}
