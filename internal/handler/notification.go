package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dukerupert/conea/internal/desktop"
	"github.com/dukerupert/conea/internal/model"
	"github.com/dukerupert/conea/internal/notification"
	"github.com/dukerupert/conea/internal/validate"
)

// NotificationHandler serves the notification API. The Provider comes from
// the request context.
type NotificationHandler struct {
	logger *slog.Logger
}

func NewNotificationHandler(logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{logger: logger}
}

type listResponse struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
}

// List handles GET /api/notifications. Without filter parameters it returns
// the provider's view under the active filters.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	p := notification.MustProvider(r.Context())
	q := r.URL.Query()

	filters, hasFilters, err := parseFilters(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sortOpts, hasSort, err := parseSort(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var list []model.Notification
	if hasFilters {
		list = p.GetNotifications(filters)
	} else {
		list = p.Notifications()
	}
	if hasSort {
		notification.SortNotifications(list, sortOpts)
	}
	writeJSON(w, http.StatusOK, listResponse{Notifications: list, UnreadCount: p.UnreadCount()})
}

// UnreadCount handles GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	p := notification.MustProvider(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": p.UnreadCount()})
}

// Create handles POST /api/notifications
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.NotificationInput
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validate.Struct(&in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n := notification.MustProvider(r.Context()).AddNotification(in)
	writeJSON(w, http.StatusCreated, n)
}

// CreateTest handles POST /api/notifications/test. The body is optional.
func (h *NotificationHandler) CreateTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type model.Type `json:"type"`
	}
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	n := notification.MustProvider(r.Context()).CreateTestNotification(req.Type)
	writeJSON(w, http.StatusCreated, n)
}

// MarkAsRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	notification.MustProvider(r.Context()).MarkAsRead(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllAsRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	notification.MustProvider(r.Context()).MarkAllAsRead()
	w.WriteHeader(http.StatusNoContent)
}

// Follow handles POST /api/notifications/{id}/follow, the click action of a
// desktop alert.
func (h *NotificationHandler) Follow(w http.ResponseWriter, r *http.Request) {
	target, found := notification.MustProvider(r.Context()).FollowNotification(r.PathValue("id"))
	if !found {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": target})
}

// Delete handles DELETE /api/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	notification.MustProvider(r.Context()).DeleteNotification(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// DeleteMany handles POST /api/notifications/delete
func (h *NotificationHandler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids" validate:"required,min=1,dive,required"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	notification.MustProvider(r.Context()).DeleteNotifications(req.IDs)
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/notifications
func (h *NotificationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	notification.MustProvider(r.Context()).ClearAllNotifications()
	w.WriteHeader(http.StatusNoContent)
}

// GetFilters handles GET /api/notifications/filters
func (h *NotificationHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, notification.MustProvider(r.Context()).Filters())
}

// UpdateFilters handles PUT /api/notifications/filters and returns the
// reloaded state.
func (h *NotificationHandler) UpdateFilters(w http.ResponseWriter, r *http.Request) {
	var f model.Filters
	if err := decodeJSON(r, &f, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validate.Filters(f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := notification.MustProvider(r.Context())
	p.SetFilters(f)
	writeJSON(w, http.StatusOK, p.State())
}

// GetSettings handles GET /api/notifications/settings
func (h *NotificationHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, notification.MustProvider(r.Context()).Settings())
}

// UpdateSettings handles PUT /api/notifications/settings
func (h *NotificationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var s model.NotificationSettings
	if err := decodeJSON(r, &s, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validate.Settings(s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := notification.MustProvider(r.Context())
	if err := p.UpdateSettings(s); err != nil {
		writeError(w, http.StatusInternalServerError, "settings applied but could not be saved")
		return
	}
	writeJSON(w, http.StatusOK, p.Settings())
}

// DesktopPermission handles GET /api/notifications/desktop-permission
func (h *NotificationHandler) DesktopPermission(w http.ResponseWriter, r *http.Request) {
	perm := notification.MustProvider(r.Context()).DesktopPermission()
	writeJSON(w, http.StatusOK, map[string]string{"permission": string(perm)})
}

// RequestDesktopPermission handles POST /api/notifications/desktop-permission.
// The prompt happens in the browser, so the answer arrives later through
// POST /api/push/permission or a new subscription.
func (h *NotificationHandler) RequestDesktopPermission(w http.ResponseWriter, r *http.Request) {
	err := notification.MustProvider(r.Context()).RequestDesktopPermission(r.Context())
	if errors.Is(err, desktop.ErrUnsupported) {
		writeError(w, http.StatusNotImplemented, "desktop notifications are not configured")
		return
	}
	if err != nil {
		h.logger.Error("request desktop permission", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to request permission")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// parseFilters reads the filter query parameters. ok is false when none
// were given.
func parseFilters(q url.Values) (f model.Filters, ok bool, err error) {
	if v := q.Get("read"); v != "" {
		read, err := strconv.ParseBool(v)
		if err != nil {
			return f, false, fmt.Errorf("invalid read: %q", v)
		}
		f.Read = &read
		ok = true
	}
	if v := q.Get("type"); v != "" {
		t := model.Type(v)
		f.Type = &t
		ok = true
	}
	if v := q.Get("category"); v != "" {
		c := model.Category(v)
		f.Category = &c
		ok = true
	}
	if v := q.Get("priority"); v != "" {
		p := model.Priority(v)
		f.Priority = &p
		ok = true
	}

	from, to := q.Get("from"), q.Get("to")
	if from != "" || to != "" {
		var dr model.DateRange
		if from != "" {
			if dr.Start, err = parseTime(from, false); err != nil {
				return f, false, fmt.Errorf("invalid from: %q", from)
			}
		}
		if to != "" {
			if dr.End, err = parseTime(to, true); err != nil {
				return f, false, fmt.Errorf("invalid to: %q", to)
			}
		}
		f.DateRange = &dr
		ok = true
	}

	if err := validate.Filters(f); err != nil {
		return f, false, err
	}
	return f, ok, nil
}

// parseTime accepts RFC 3339 or a bare date. A bare end date covers the
// whole day.
func parseTime(v string, end bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parseSort(q url.Values) (model.SortOptions, bool, error) {
	field := q.Get("sort")
	if field == "" {
		return model.SortOptions{}, false, nil
	}
	opts := model.SortOptions{Field: model.SortField(field), Direction: model.SortDirection(q.Get("dir"))}
	switch opts.Field {
	case model.SortByTimestamp, model.SortByPriority, model.SortByType:
	default:
		return opts, false, fmt.Errorf("invalid sort: %q", field)
	}
	switch opts.Direction {
	case "", model.SortAsc, model.SortDesc:
	default:
		return opts, false, fmt.Errorf("invalid dir: %q", opts.Direction)
	}
	return opts, true, nil
}
