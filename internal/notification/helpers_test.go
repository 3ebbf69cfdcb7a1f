package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/conea/internal/bridge"
	"github.com/dukerupert/conea/internal/desktop"
	"github.com/dukerupert/conea/internal/model"
)

var errDiskFull = errors.New("disk full")

// memStore is an in-memory Store. With failSaves set every save fails but
// the data is still kept, so tests can observe what was attempted.
type memStore struct {
	mu        sync.Mutex
	list      []model.Notification
	settings  model.NotificationSettings
	saves     int
	failSaves bool
}

func newMemStore(list ...model.Notification) *memStore {
	if list == nil {
		list = []model.Notification{}
	}
	return &memStore{list: list, settings: model.DefaultNotificationSettings()}
}

func (m *memStore) LoadNotifications() ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneList(m.list), nil
}

func (m *memStore) SaveNotifications(list []model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.list = cloneList(list)
	if m.failSaves {
		return errDiskFull
	}
	return nil
}

func (m *memStore) LoadSettings() (model.NotificationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Clone(), nil
}

func (m *memStore) SaveSettings(s model.NotificationSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s.Clone()
	if m.failSaves {
		return errDiskFull
	}
	return nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// fakeDesktop records every alert it is asked to show.
type fakeDesktop struct {
	mu         sync.Mutex
	supported  bool
	permission desktop.Permission
	shown      []desktop.Alert
	showErr    error
	requested  chan struct{}
	// release, when set, holds RequestPermission open until it receives.
	release chan struct{}
}

func newFakeDesktop(p desktop.Permission) *fakeDesktop {
	return &fakeDesktop{supported: true, permission: p, requested: make(chan struct{}, 4)}
}

func (f *fakeDesktop) Supported() bool { return f.supported }

func (f *fakeDesktop) Permission() desktop.Permission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permission
}

func (f *fakeDesktop) RequestPermission(ctx context.Context) error {
	f.requested <- struct{}{}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeDesktop) Show(_ context.Context, a desktop.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, a)
	return f.showErr
}

func (f *fakeDesktop) alerts() []desktop.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]desktop.Alert(nil), f.shown...)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (f *fakeMailer) SendNotification(_ context.Context, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

// countingBridge counts Subscribe calls on top of a Local bridge.
type countingBridge struct {
	*bridge.Local
	mu         sync.Mutex
	subscribes int
}

func (c *countingBridge) Subscribe(ctx context.Context, channel string, h bridge.Handler) (func(), error) {
	c.mu.Lock()
	c.subscribes++
	c.mu.Unlock()
	return c.Local.Subscribe(ctx, channel, h)
}

type event struct {
	Type    EventType
	Payload any
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) listen(e EventType, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{e, payload})
}

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recorder) count(t EventType) int {
	n := 0
	for _, e := range r.all() {
		if e.Type == t {
			n++
		}
	}
	return n
}

// stepClock returns a clock that advances one minute per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Minute)
		return cur
	}
}

func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("n%d", n)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, st Store, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{
		WithLogger(discardLogger()),
		WithClock(stepClock(baseTime)),
		WithIDGenerator(seqIDs()),
	}, opts...)
	svc := NewService(st, opts...)
	t.Cleanup(svc.Close)
	return svc
}

func orderInput() model.NotificationInput {
	return model.NotificationInput{
		Type:     model.TypeOrder,
		Title:    "New Order",
		Message:  "Order #1 received",
		Category: model.CategoryOrders,
		Priority: model.PriorityHigh,
	}
}

func ptr[T any](v T) *T { return &v }
