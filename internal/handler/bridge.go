package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/conea/internal/bridge"
	"github.com/dukerupert/conea/internal/validate"
)

// BridgeHandler lets in-house producers push a message onto the bridge
// channel the notification service listens on.
type BridgeHandler struct {
	pub     bridge.Publisher
	channel string
	logger  *slog.Logger
}

func NewBridgeHandler(pub bridge.Publisher, channel string, logger *slog.Logger) *BridgeHandler {
	return &BridgeHandler{pub: pub, channel: channel, logger: logger}
}

type publishRequest struct {
	Type string          `json:"type" validate:"required,max=64"`
	Data json.RawMessage `json:"data"`
}

// Publish handles POST /api/bridge/publish. The message is accepted once it
// is on the bridge; subscribers decide what to do with it.
func (h *BridgeHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage("null")
	}

	if err := h.pub.Publish(r.Context(), h.channel, req.Type, req.Data); err != nil {
		h.logger.Error("publish bridge message", "type", req.Type, "error", err)
		writeError(w, http.StatusBadGateway, "failed to publish")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
