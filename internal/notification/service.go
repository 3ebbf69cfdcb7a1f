// Package notification owns the notification list and settings, fans
// changes out to subscribers, and turns bridge messages into notifications
// with desktop and email side effects.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/conea/internal/bridge"
	"github.com/dukerupert/conea/internal/desktop"
	"github.com/dukerupert/conea/internal/id"
	"github.com/dukerupert/conea/internal/model"
)

// DefaultChannel is the bridge channel notifications arrive on.
const DefaultChannel = "notifications"

// bridgeMessageType is the only bridge message type turned into a notification.
const bridgeMessageType = "notification"

// EventType names a change to the notification list.
type EventType string

// Payloads: EventCreate and EventMarkAsRead carry a model.Notification,
// EventMarkAllAsRead the full []model.Notification, EventDelete the removed id.
const (
	EventCreate        EventType = "create"
	EventUpdate        EventType = "update"
	EventMarkAsRead    EventType = "markAsRead"
	EventMarkAllAsRead EventType = "markAllAsRead"
	EventDelete        EventType = "delete"
)

// Listener receives list changes.
type Listener func(event EventType, payload any)

// Store is the persistence the Service reads once and writes on every change.
type Store interface {
	LoadNotifications() ([]model.Notification, error)
	SaveNotifications(list []model.Notification) error
	LoadSettings() (model.NotificationSettings, error)
	SaveSettings(settings model.NotificationSettings) error
}

// Mailer sends one notification by email.
type Mailer interface {
	SendNotification(ctx context.Context, n model.Notification) error
}

type listenerEntry struct {
	fn Listener
}

// Service is the single owner of notification state. Construct it once at
// startup and pass it to whoever needs it.
type Service struct {
	store   Store
	logger  *slog.Logger
	bridge  bridge.Bridge
	channel string
	desktop desktop.Platform
	mailer  Mailer
	now     func() time.Time
	newID   func() string

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	list           []model.Notification
	listLoaded     bool
	settings       model.NotificationSettings
	settingsLoaded bool

	listenersMu sync.Mutex
	listeners   []*listenerEntry

	bridgeMu      sync.Mutex
	bridgeUnsub   func()
	bridgeHandler sync.Mutex

	// permissionPending is set while a permission prompt started by a
	// bridge message is open.
	permissionPending atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

// WithBridge subscribes the Service to channel on b once the first
// listener subscribes.
func WithBridge(b bridge.Bridge, channel string) Option {
	return func(s *Service) {
		s.bridge = b
		if channel != "" {
			s.channel = channel
		}
	}
}

func WithDesktop(p desktop.Platform) Option {
	return func(s *Service) { s.desktop = p }
}

func WithMailer(m Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  slog.Default(),
		channel: DefaultChannel,
		desktop: desktop.Unsupported{},
		now:     time.Now,
		newID:   id.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Close drops the bridge subscription and cancels in-flight side effects.
func (s *Service) Close() {
	s.bridgeMu.Lock()
	unsub := s.bridgeUnsub
	s.bridgeUnsub = nil
	s.bridgeMu.Unlock()
	if unsub != nil {
		unsub()
	}
	s.cancel()
}

// loadLocked reads the list from the store on first use. Caller holds s.mu.
func (s *Service) loadLocked() {
	if s.listLoaded {
		return
	}
	list, err := s.store.LoadNotifications()
	if err != nil {
		s.logger.Error("load notifications, using defaults", "error", err)
	}
	s.list = list
	s.listLoaded = true
}

func (s *Service) persistLocked() {
	if err := s.store.SaveNotifications(s.list); err != nil {
		s.logger.Error("persist notifications", "error", err)
	}
}

// GetNotifications returns the records matching every set field of f,
// newest first.
func (s *Service) GetNotifications(f model.Filters) []model.Notification {
	s.mu.Lock()
	s.loadLocked()
	out := make([]model.Notification, 0, len(s.list))
	for _, n := range s.list {
		if Matches(n, f) {
			out = append(out, n.Clone())
		}
	}
	s.mu.Unlock()

	SortNotifications(out, model.SortOptions{Field: model.SortByTimestamp, Direction: model.SortDesc})
	return out
}

// GetUnreadCount counts unread records, ignoring any filter.
func (s *Service) GetUnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	count := 0
	for _, n := range s.list {
		if !n.Read {
			count++
		}
	}
	return count
}

// AddNotification creates an unread notification stamped with the current
// time and a fresh id.
func (s *Service) AddNotification(in model.NotificationInput) model.Notification {
	now := s.now()
	n := model.Notification{
		ID:         s.newID(),
		Type:       in.Type,
		Title:      in.Title,
		Message:    in.Message,
		Timestamp:  now,
		ActionURL:  in.ActionURL,
		Category:   in.Category,
		Priority:   in.Priority,
		ExpiresAt:  in.ExpiresAt,
		ReceivedAt: now,
	}
	n = n.Clone()
	s.insert(n)
	return n
}

// insert prepends n unless its id is already taken, and emits create.
func (s *Service) insert(n model.Notification) bool {
	s.mu.Lock()
	s.loadLocked()
	for _, cur := range s.list {
		if cur.ID == n.ID {
			s.mu.Unlock()
			return false
		}
	}
	s.list = append([]model.Notification{n}, s.list...)
	s.persistLocked()
	s.mu.Unlock()

	s.emit(EventCreate, n.Clone())
	return true
}

// MarkAsRead marks one record read. Unknown ids and records that are
// already read change nothing and emit nothing.
func (s *Service) MarkAsRead(id string) {
	s.mu.Lock()
	s.loadLocked()
	var updated *model.Notification
	for i := range s.list {
		if s.list[i].ID == id && !s.list[i].Read {
			s.list[i].Read = true
			n := s.list[i].Clone()
			updated = &n
			break
		}
	}
	if updated != nil {
		s.persistLocked()
	}
	s.mu.Unlock()

	if updated != nil {
		s.emit(EventMarkAsRead, *updated)
	}
}

// MarkAllAsRead marks every record read, persists once and emits the full
// list once.
func (s *Service) MarkAllAsRead() {
	s.mu.Lock()
	s.loadLocked()
	for i := range s.list {
		s.list[i].Read = true
	}
	s.persistLocked()
	all := cloneList(s.list)
	s.mu.Unlock()

	s.emit(EventMarkAllAsRead, all)
}

// DeleteNotification removes one record.
func (s *Service) DeleteNotification(id string) {
	s.DeleteNotifications([]string{id})
}

// DeleteNotifications removes the listed records and emits one delete per
// record actually removed.
func (s *Service) DeleteNotifications(ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	s.loadLocked()
	kept := make([]model.Notification, 0, len(s.list))
	present := make(map[string]bool)
	for _, n := range s.list {
		if drop[n.ID] {
			present[n.ID] = true
			continue
		}
		kept = append(kept, n)
	}
	if len(present) > 0 {
		s.list = kept
		s.persistLocked()
	}
	s.mu.Unlock()

	for _, id := range ids {
		if present[id] {
			delete(present, id)
			s.emit(EventDelete, id)
		}
	}
}

// ClearAllNotifications empties the list and emits one delete per record
// that existed.
func (s *Service) ClearAllNotifications() {
	s.mu.Lock()
	s.loadLocked()
	prior := make([]string, len(s.list))
	for i, n := range s.list {
		prior[i] = n.ID
	}
	s.list = []model.Notification{}
	s.persistLocked()
	s.mu.Unlock()

	for _, id := range prior {
		s.emit(EventDelete, id)
	}
}

// GetNotificationSettings returns a copy of the current settings.
func (s *Service) GetNotificationSettings() model.NotificationSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settingsLocked().Clone()
}

func (s *Service) settingsLocked() model.NotificationSettings {
	if !s.settingsLoaded {
		settings, err := s.store.LoadSettings()
		if err != nil {
			s.logger.Error("load settings, using defaults", "error", err)
		}
		s.settings = settings
		s.settingsLoaded = true
	}
	return s.settings
}

// SaveNotificationSettings replaces the settings wholesale. The new
// settings take effect even when persisting them fails; the error is
// returned for callers that want to report it. No event is emitted.
func (s *Service) SaveNotificationSettings(settings model.NotificationSettings) error {
	settings = settings.Complete()

	s.mu.Lock()
	s.settings = settings
	s.settingsLoaded = true
	err := s.store.SaveSettings(settings)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("persist settings", "error", err)
		return err
	}
	return nil
}

// Subscribe registers l and returns a func that removes it. The first
// subscription also attaches the Service to the bridge.
func (s *Service) Subscribe(l Listener) func() {
	e := &listenerEntry{fn: l}

	s.listenersMu.Lock()
	next := make([]*listenerEntry, len(s.listeners), len(s.listeners)+1)
	copy(next, s.listeners)
	s.listeners = append(next, e)
	s.listenersMu.Unlock()

	s.attachBridge()

	var once sync.Once
	return func() {
		once.Do(func() { s.removeListener(e) })
	}
}

func (s *Service) removeListener(e *listenerEntry) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for i, cur := range s.listeners {
		if cur == e {
			next := make([]*listenerEntry, 0, len(s.listeners)-1)
			next = append(next, s.listeners[:i]...)
			s.listeners = append(next, s.listeners[i+1:]...)
			return
		}
	}
}

// emit calls every listener registered when emit started, even if one of
// them unsubscribes another along the way.
func (s *Service) emit(event EventType, payload any) {
	s.listenersMu.Lock()
	snapshot := s.listeners
	s.listenersMu.Unlock()

	for _, e := range snapshot {
		e.fn(event, payload)
	}
}

// attachBridge subscribes to the bridge channel once. A failed attempt is
// retried on the next Subscribe.
func (s *Service) attachBridge() {
	if s.bridge == nil {
		return
	}
	s.bridgeMu.Lock()
	defer s.bridgeMu.Unlock()
	if s.bridgeUnsub != nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	unsub, err := s.bridge.Subscribe(ctx, s.channel, s.handleBridgeMessage)
	if err != nil {
		s.logger.Error("subscribe to bridge", "channel", s.channel, "error", err)
		return
	}
	s.bridgeUnsub = unsub
	s.logger.Info("subscribed to bridge", "channel", s.channel)
}

// bridgePayload is the data of a bridge notification message. ID and
// Timestamp are optional.
type bridgePayload struct {
	ID        string         `json:"id"`
	Type      model.Type     `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Timestamp *time.Time     `json:"timestamp"`
	ActionURL string         `json:"actionUrl"`
	Category  model.Category `json:"category"`
	Priority  model.Priority `json:"priority"`
	ExpiresAt *time.Time     `json:"expiresAt"`
}

var errInvalidPayload = errors.New("invalid notification payload")

func (s *Service) decodeBridgeNotification(data json.RawMessage) (model.Notification, error) {
	var p bridgePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Notification{}, fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	switch {
	case p.Title == "":
		return model.Notification{}, fmt.Errorf("%w: missing title", errInvalidPayload)
	case !p.Type.Valid():
		return model.Notification{}, fmt.Errorf("%w: type %q", errInvalidPayload, p.Type)
	case !p.Category.Valid():
		return model.Notification{}, fmt.Errorf("%w: category %q", errInvalidPayload, p.Category)
	case !p.Priority.Valid():
		return model.Notification{}, fmt.Errorf("%w: priority %q", errInvalidPayload, p.Priority)
	}

	n := model.Notification{
		ID:        p.ID,
		Type:      p.Type,
		Title:     p.Title,
		Message:   p.Message,
		ActionURL: p.ActionURL,
		Category:  p.Category,
		Priority:  p.Priority,
		ExpiresAt: p.ExpiresAt,
	}
	if n.ID == "" {
		n.ID = s.newID()
	}
	n.ReceivedAt = s.now()
	n.Timestamp = n.ReceivedAt
	if p.Timestamp != nil {
		n.Timestamp = *p.Timestamp
	}
	return n, nil
}

// handleBridgeMessage stores an inbound notification and then runs desktop
// and email delivery. Messages are handled one at a time.
func (s *Service) handleBridgeMessage(msg bridge.Message) {
	if msg.Type != bridgeMessageType {
		s.logger.Debug("ignoring bridge message", "type", msg.Type)
		return
	}

	s.bridgeHandler.Lock()
	defer s.bridgeHandler.Unlock()

	n, err := s.decodeBridgeNotification(msg.Data)
	if err != nil {
		s.logger.Warn("dropping bridge message", "error", err)
		return
	}
	if !s.insert(n) {
		s.logger.Info("skipping redelivered notification", "id", n.ID)
		return
	}

	settings := s.GetNotificationSettings()
	s.deliverDesktop(n, settings)
	s.deliverEmail(n, settings)
}

func (s *Service) deliverDesktop(n model.Notification, settings model.NotificationSettings) {
	if s.desktop == nil || !s.desktop.Supported() || !settings.DesktopAllowed(n.Category) {
		return
	}

	switch s.desktop.Permission() {
	case desktop.PermissionGranted:
		err := s.desktop.Show(s.ctx, desktop.Alert{
			NotificationID: n.ID,
			Tag:            n.ID,
			Title:          n.Title,
			Body:           n.Message,
			URL:            n.ActionURL,
			Duration:       settings.DesktopDuration(),
		})
		if err != nil {
			s.logger.Error("show desktop notification", "id", n.ID, "error", err)
		}
	case desktop.PermissionDefault:
		if !s.permissionPending.CompareAndSwap(false, true) {
			return
		}
		go func() {
			defer s.permissionPending.Store(false)
			if err := s.desktop.RequestPermission(s.ctx); err != nil {
				s.logger.Warn("request desktop permission", "error", err)
			}
		}()
	}
}

func (s *Service) deliverEmail(n model.Notification, settings model.NotificationSettings) {
	if s.mailer == nil || settings.EmailFrequency != model.EmailImmediate || !settings.EmailAllowed(n.Category) {
		return
	}
	if err := s.mailer.SendNotification(s.ctx, n); err != nil {
		s.logger.Error("email notification", "id", n.ID, "error", err)
	}
}

// DesktopPermission reports the platform permission state.
func (s *Service) DesktopPermission() desktop.Permission {
	if s.desktop == nil || !s.desktop.Supported() {
		return desktop.PermissionDenied
	}
	return s.desktop.Permission()
}

// RequestDesktopPermission asks the platform for permission.
func (s *Service) RequestDesktopPermission(ctx context.Context) error {
	if s.desktop == nil || !s.desktop.Supported() {
		return desktop.ErrUnsupported
	}
	return s.desktop.RequestPermission(ctx)
}

// FollowNotification is what clicking a notification does: the record is
// marked read and its action URL returned. found is false for unknown ids.
func (s *Service) FollowNotification(id string) (url string, found bool) {
	s.mu.Lock()
	s.loadLocked()
	for _, n := range s.list {
		if n.ID == id {
			url, found = n.ActionURL, true
			break
		}
	}
	s.mu.Unlock()

	if found {
		s.MarkAsRead(id)
	}
	return url, found
}

type testTemplate struct {
	title    string
	message  string
	category model.Category
	priority model.Priority
}

var testTemplates = map[model.Type]testTemplate{
	model.TypeSuccess:   {"処理完了", "操作が正常に完了しました。", model.CategorySystem, model.PriorityLow},
	model.TypeError:     {"エラー発生", "処理中にエラーが発生しました。", model.CategorySystem, model.PriorityHigh},
	model.TypeWarning:   {"警告", "確認が必要な項目があります。", model.CategorySystem, model.PriorityMedium},
	model.TypeInfo:      {"お知らせ", "新しい情報があります。", model.CategorySystem, model.PriorityLow},
	model.TypeOrder:     {"新規注文", "新しい注文を受け付けました。", model.CategoryOrders, model.PriorityHigh},
	model.TypeSales:     {"売上更新", "本日の売上が更新されました。", model.CategorySales, model.PriorityMedium},
	model.TypeInventory: {"在庫アラート", "在庫が少なくなっている商品があります。", model.CategoryInventory, model.PriorityHigh},
	model.TypeSystem:    {"システム通知", "システムの状態が更新されました。", model.CategorySystem, model.PriorityLow},
}

// CreateTestNotification adds a canned notification of type t. Unknown or
// empty types fall back to info.
func (s *Service) CreateTestNotification(t model.Type) model.Notification {
	tmpl, ok := testTemplates[t]
	if !ok {
		t = model.TypeInfo
		tmpl = testTemplates[t]
	}
	return s.AddNotification(model.NotificationInput{
		Type:     t,
		Title:    tmpl.title,
		Message:  tmpl.message,
		Category: tmpl.category,
		Priority: tmpl.priority,
	})
}

func cloneList(list []model.Notification) []model.Notification {
	out := make([]model.Notification, len(list))
	for i, n := range list {
		out[i] = n.Clone()
	}
	return out
}
