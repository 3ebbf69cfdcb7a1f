package server

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dukerupert/conea/internal/bridge"
	"github.com/dukerupert/conea/internal/handler"
	"github.com/dukerupert/conea/internal/middleware"
	"github.com/dukerupert/conea/internal/notification"
	"github.com/dukerupert/conea/internal/push"
	ws "github.com/dukerupert/conea/internal/websocket"
)

// Per-client request budget for the API.
const (
	requestRate  = rate.Limit(20)
	requestBurst = 40
)

// Push bundles the web push pieces. Leave it nil when VAPID keys are not
// configured and the /api/push routes are not served.
type Push struct {
	Subscriptions handler.PushSubscriptions
	Service       *push.Service
	Platform      handler.PermissionSetter
}

// Ingress exposes POST /api/bridge/publish for producers that cannot reach
// the bridge directly. Leave it nil when the bridge has no publish side.
type Ingress struct {
	Publisher bridge.Publisher
	Channel   string
}

type Server struct {
	hub            *ws.Hub
	provider       *notification.Provider
	notificationH  *handler.NotificationHandler
	pushH          *handler.PushHandler
	bridgeH        *handler.BridgeHandler
	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
	logger         *slog.Logger
}

// New wires the HTTP surface around provider. Every provider reload is
// broadcast to websocket clients as notifications_changed.
func New(provider *notification.Provider, hub *ws.Hub, pushDeps *Push, ingress *Ingress, allowedOrigins []string, logger *slog.Logger) *Server {
	s := &Server{
		hub:            hub,
		provider:       provider,
		notificationH:  handler.NewNotificationHandler(logger.With("component", "notification_handler")),
		rateLimiter:    middleware.NewRateLimiter(requestRate, requestBurst),
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
	if pushDeps != nil {
		s.pushH = handler.NewPushHandler(pushDeps.Subscriptions, pushDeps.Service, pushDeps.Platform, logger.With("component", "push_handler"))
	}
	if ingress != nil {
		s.bridgeH = handler.NewBridgeHandler(ingress.Publisher, ingress.Channel, logger.With("component", "bridge_handler"))
	}

	provider.OnChange(func(st notification.State) {
		hub.Broadcast(ws.NotificationsChanged(st.UnreadCount, len(st.Notifications)))
	})
	return s
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.allowedOrigins, s.logger.With("component", "websocket")))
	s.registerRoutes(mux)

	var h http.Handler = mux
	h = middleware.Provider(s.provider)(h)
	h = middleware.RateLimit(s.rateLimiter, middleware.RealIP)(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	h = middleware.Recover(s.logger.With("component", "http"))(h)
	return h
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Notification API routes
	mux.HandleFunc("GET /api/notifications", s.notificationH.List)
	mux.HandleFunc("POST /api/notifications", s.notificationH.Create)
	mux.HandleFunc("DELETE /api/notifications", s.notificationH.Clear)
	mux.HandleFunc("GET /api/notifications/unread-count", s.notificationH.UnreadCount)
	mux.HandleFunc("POST /api/notifications/test", s.notificationH.CreateTest)
	mux.HandleFunc("POST /api/notifications/read-all", s.notificationH.MarkAllAsRead)
	mux.HandleFunc("POST /api/notifications/delete", s.notificationH.DeleteMany)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.notificationH.MarkAsRead)
	mux.HandleFunc("POST /api/notifications/{id}/follow", s.notificationH.Follow)
	mux.HandleFunc("DELETE /api/notifications/{id}", s.notificationH.Delete)

	mux.HandleFunc("GET /api/notifications/filters", s.notificationH.GetFilters)
	mux.HandleFunc("PUT /api/notifications/filters", s.notificationH.UpdateFilters)
	mux.HandleFunc("GET /api/notifications/settings", s.notificationH.GetSettings)
	mux.HandleFunc("PUT /api/notifications/settings", s.notificationH.UpdateSettings)
	mux.HandleFunc("GET /api/notifications/desktop-permission", s.notificationH.DesktopPermission)
	mux.HandleFunc("POST /api/notifications/desktop-permission", s.notificationH.RequestDesktopPermission)

	// Push subscription API routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("POST /api/push/permission", s.pushH.SetPermission)
	}

	if s.bridgeH != nil {
		mux.HandleFunc("POST /api/bridge/publish", s.bridgeH.Publish)
	}
}

// CleanupLoop drops idle rate limiter entries every interval until stop is
// closed.
func (s *Server) CleanupLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.rateLimiter.Cleanup(interval)
			s.logger.Debug("rate limiter cleanup", "tracked", s.rateLimiter.Len())
		case <-stop:
			return
		}
	}
}
