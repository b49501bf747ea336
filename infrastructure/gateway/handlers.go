package gateway

import (
	"encoding/json"
	"live-chat/domain"
	"live-chat/errors"
	"live-chat/infrastructure/grpc/chatapi"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type postMessageRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type channelStats struct {
	ChannelID    string    `json:"channel_id"`
	Subscribers  int       `json:"subscribers"`
	LastSequence uint64    `json:"last_sequence"`
	LastActivity time.Time `json:"last_activity"`
}

type statsResponse struct {
	Channels    int            `json:"channels"`
	Subscribers int            `json:"subscribers"`
	PerChannel  []channelStats `json:"per_channel"`
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	stats := h.chatService.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		Channels:    stats.Channels,
		Subscribers: stats.Subscribers,
		PerChannel: lo.Map(stats.PerChannel, func(c domain.ChannelStats, _ int) channelStats {
			return channelStats{
				ChannelID:    c.ChannelID.String(),
				Subscribers:  c.Subscribers,
				LastSequence: c.LastSequence,
				LastActivity: c.LastActivity,
			}
		}),
	})
}

// PostMessage appends a message for a session opened through /events or /ws by the same caller.
// The message reaches the sender through its own stream, the response only acknowledges it.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	identity, err := h.chatService.Authenticate(r.Context(), tokenFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	var body postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Failure(errors.ErrInvalidMessage, "invalid request body"))
		return
	}
	message, err := h.chatService.PostMessage(r.Context(), domain.PostMessageCommand{
		ChannelID: channelParam(r),
		SessionID: body.SessionID,
		Subject:   identity.Subject,
		Text:      body.Text,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chatapi.PostMessageResponse{Message: chatapi.FromMessage(message)})
}

// History pages backwards through a channel with the optional before and limit query parameters.
// Like every channel route it needs a valid identity token.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if _, err := h.chatService.Authenticate(r.Context(), tokenFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}
	before, err := queryUint(r, "before")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryUint(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	messages, err := h.chatService.GetMessages(domain.GetHistoryCommand{
		ChannelID: channelParam(r),
		Before:    before,
		Limit:     int(limit),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatapi.HistoryResponse{Messages: chatapi.FromMessages(messages)})
}

func channelParam(r *http.Request) domain.ChannelID {
	return domain.ChannelID(strings.TrimSpace(chi.URLParam(r, "id")))
}

// tokenFromRequest reads a bearer authorization header, or the token query
// parameter for clients that cannot set headers (EventSource, WebSocket).
func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func queryUint(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errors.Failure(errors.ErrInvalidMessage, "invalid "+name+" parameter")
	}
	return value, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrIdentityRequired), errors.Is(err, errors.ErrInvalidIdentity),
		errors.Is(err, errors.ErrConnectionFailed):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrChannelRequired), errors.Is(err, errors.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrUnknownSession), errors.Is(err, errors.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, errors.ErrSlowConsumer):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
