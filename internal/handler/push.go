package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/conea/internal/desktop"
	"github.com/dukerupert/conea/internal/model"
	"github.com/dukerupert/conea/internal/push"
	"github.com/dukerupert/conea/internal/validate"
)

// PushSubscriptions is the part of store.PushStore the handler uses.
type PushSubscriptions interface {
	CreateSubscription(endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error)
	List() ([]model.PushSubscription, error)
	Delete(id int64) error
}

// PermissionSetter records what the browser reported.
type PermissionSetter interface {
	SetPermission(desktop.Permission) error
}

type PushHandler struct {
	subs     PushSubscriptions
	service  *push.Service
	platform PermissionSetter
	logger   *slog.Logger
}

func NewPushHandler(subs PushSubscriptions, svc *push.Service, platform PermissionSetter, logger *slog.Logger) *PushHandler {
	return &PushHandler{subs: subs, service: svc, platform: platform, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint" validate:"required,url"`
	P256dh     string `json:"p256dh" validate:"required"`
	Auth       string `json:"auth" validate:"required"`
	DeviceName string `json:"device_name" validate:"max=100"`
}

// Subscribe handles POST /api/push/subscribe. A new subscription means the
// browser granted permission.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := h.subs.CreateSubscription(req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	if err := h.platform.SetPermission(desktop.PermissionGranted); err != nil {
		h.logger.Error("record desktop permission", "error", err)
	}

	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.subs.Delete(id); err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subs.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

// SetPermission handles POST /api/push/permission
func (h *PushHandler) SetPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Permission desktop.Permission `json:"permission"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !req.Permission.Valid() {
		writeError(w, http.StatusBadRequest, "permission must be granted, denied or default")
		return
	}

	if err := h.platform.SetPermission(req.Permission); err != nil {
		h.logger.Error("record desktop permission", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save permission")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
