package notification

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/conea/internal/desktop"
	"github.com/dukerupert/conea/internal/model"
)

// State is the provider's mirror of the service.
type State struct {
	Notifications []model.Notification       `json:"notifications"`
	UnreadCount   int                        `json:"unreadCount"`
	Filters       model.Filters              `json:"filters"`
	Settings      model.NotificationSettings `json:"settings"`
}

// Provider keeps a filtered view of the Service current for as long as it
// is mounted, and exposes the Service's operations to request handlers.
type Provider struct {
	svc    *Service
	logger *slog.Logger

	mu      sync.RWMutex
	state   State
	unsub   func()
	mounted bool

	changeMu sync.Mutex
	onChange []func(State)

	// deliverMu is held from snapshot to the end of delivery so hooks see
	// states in the order they were taken.
	deliverMu sync.Mutex
}

func NewProvider(svc *Service, logger *slog.Logger) *Provider {
	return &Provider{
		svc:    svc,
		logger: logger,
		state: State{
			Notifications: []model.Notification{},
			Settings:      svc.GetNotificationSettings(),
		},
	}
}

// OnChange registers fn to receive the state after every reload. Calls are
// serialized and fn must not call back into the Provider.
func (p *Provider) OnChange(fn func(State)) {
	p.changeMu.Lock()
	p.onChange = append(p.onChange, fn)
	p.changeMu.Unlock()
}

// Mount subscribes to the service and loads the current state.
func (p *Provider) Mount() {
	p.mu.Lock()
	if p.mounted {
		p.mu.Unlock()
		return
	}
	p.mounted = true
	p.mu.Unlock()

	unsub := p.svc.Subscribe(p.handleEvent)

	p.mu.Lock()
	p.unsub = unsub
	p.state.Settings = p.svc.GetNotificationSettings()
	p.mu.Unlock()

	p.reload()
	p.logger.Debug("notification provider mounted")
}

// Unmount releases the service subscription. It is safe to call when not
// mounted.
func (p *Provider) Unmount() {
	p.mu.Lock()
	unsub := p.unsub
	p.unsub = nil
	p.mounted = false
	p.mu.Unlock()

	if unsub != nil {
		unsub()
		p.logger.Debug("notification provider unmounted")
	}
}

func (p *Provider) handleEvent(event EventType, _ any) {
	switch event {
	case EventCreate, EventUpdate, EventMarkAsRead, EventMarkAllAsRead, EventDelete:
		p.reload()
	}
}

// reload re-reads the filtered list and unread count from the service.
func (p *Provider) reload() {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	if !p.mounted {
		p.mu.Unlock()
		return
	}
	p.state.Notifications = p.svc.GetNotifications(p.state.Filters)
	p.state.UnreadCount = p.svc.GetUnreadCount()
	state := cloneState(p.state)
	p.mu.Unlock()

	p.changeMu.Lock()
	fns := p.onChange
	p.changeMu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

// State returns a copy of the mirrored state.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneState(p.state)
}

func (p *Provider) Notifications() []model.Notification {
	return p.State().Notifications
}

func (p *Provider) UnreadCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.UnreadCount
}

func (p *Provider) Filters() model.Filters {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Filters
}

func (p *Provider) Settings() model.NotificationSettings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Settings.Clone()
}

// SetFilters replaces the active filters and reloads straight away.
func (p *Provider) SetFilters(f model.Filters) {
	p.mu.Lock()
	p.state.Filters = f
	p.mu.Unlock()
	p.reload()
}

func (p *Provider) AddNotification(in model.NotificationInput) model.Notification {
	return p.svc.AddNotification(in)
}

func (p *Provider) MarkAsRead(id string) {
	p.svc.MarkAsRead(id)
}

func (p *Provider) MarkAllAsRead() {
	p.svc.MarkAllAsRead()
}

func (p *Provider) DeleteNotification(id string) {
	p.svc.DeleteNotification(id)
}

func (p *Provider) DeleteNotifications(ids []string) {
	p.svc.DeleteNotifications(ids)
}

func (p *Provider) ClearAllNotifications() {
	p.svc.ClearAllNotifications()
}

func (p *Provider) CreateTestNotification(t model.Type) model.Notification {
	return p.svc.CreateTestNotification(t)
}

func (p *Provider) FollowNotification(id string) (string, bool) {
	return p.svc.FollowNotification(id)
}

// GetNotifications queries the service directly, bypassing the active
// filters.
func (p *Provider) GetNotifications(f model.Filters) []model.Notification {
	return p.svc.GetNotifications(f)
}

// UpdateSettings saves settings and refreshes the mirrored copy.
func (p *Provider) UpdateSettings(settings model.NotificationSettings) error {
	err := p.svc.SaveNotificationSettings(settings)

	p.mu.Lock()
	p.state.Settings = p.svc.GetNotificationSettings()
	p.mu.Unlock()
	return err
}

func (p *Provider) DesktopPermission() desktop.Permission {
	return p.svc.DesktopPermission()
}

func (p *Provider) RequestDesktopPermission(ctx context.Context) error {
	return p.svc.RequestDesktopPermission(ctx)
}

func cloneState(s State) State {
	return State{
		Notifications: cloneList(s.Notifications),
		UnreadCount:   s.UnreadCount,
		Filters:       s.Filters,
		Settings:      s.Settings.Clone(),
	}
}
