package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"live-chat/contract"
	"live-chat/domain"
	"live-chat/errors"
	"live-chat/infrastructure/grpc/chatapi"
	"net/http"
	"time"

	"golang.org/x/net/websocket"
)

const keepAliveInterval = 15 * time.Second

type sendFrame struct {
	Text string `json:"text"`
}

// subscribe authenticates the caller and joins the channel of the route.
// On failure the error response is already written.
func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) (contract.Subscription, bool) {
	identity, err := h.chatService.Authenticate(r.Context(), tokenFromRequest(r))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	sub, err := h.chatService.JoinChannel(channelParam(r), identity)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return sub, true
}

// Events streams the channel as server-sent events: one welcome, one snapshot, then
// one message event per appended message. An error event precedes an eviction.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming unsupported"))
		return
	}
	sub, ok := h.subscribe(w, r)
	if !ok {
		return
	}
	defer sub.Close()

	log := h.log.With("channel_id", sub.Channel().String(), "session_id", sub.ID())
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("Event stream closed by client")
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case evt, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					log.Warn("Subscription ended by the channel", "error", err)
					_ = writeEvent(w, "error", errorResponse{Error: err.Error()})
					flusher.Flush()
				}
				return
			}
			frame, ok := chatapi.FromEvent(evt)
			if !ok {
				continue
			}
			if err := writeEvent(w, eventName(frame), frame); err != nil {
				log.Debug("Event stream write failed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// WebSocket carries the same frames as Events downstream and accepts {"text": ...} frames upstream.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subscribe(w, r)
	if !ok {
		return
	}
	defer sub.Close()

	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWebSocket(conn, sub)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWebSocket(conn *websocket.Conn, sub contract.Subscription) {
	defer func() { _ = conn.Close() }()
	log := h.log.With("channel_id", sub.Channel().String(), "session_id", sub.ID())

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { _ = conn.Close() }()
		for evt := range sub.Events() {
			frame, ok := chatapi.FromEvent(evt)
			if !ok {
				continue
			}
			if err := websocket.JSON.Send(conn, frame); err != nil {
				log.Debug("WebSocket write failed", "error", err)
				return
			}
		}
		if err := sub.Err(); err != nil {
			log.Warn("Subscription ended by the channel", "error", err)
			_ = websocket.JSON.Send(conn, errorResponse{Error: err.Error()})
		}
	}()

	ctx := conn.Request().Context()
	for {
		var in sendFrame
		if err := websocket.JSON.Receive(conn, &in); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("WebSocket read ended", "error", err)
			}
			break
		}
		_, err := h.chatService.PostMessage(ctx, domain.PostMessageCommand{
			ChannelID: sub.Channel(),
			SessionID: sub.ID(),
			Subject:   sub.Identity().Subject,
			Text:      in.Text,
		})
		if err != nil {
			_ = websocket.JSON.Send(conn, errorResponse{Error: err.Error()})
		}
	}
	sub.Close()
	<-done
}

func eventName(frame *chatapi.ChannelEvent) string {
	switch {
	case frame.Welcome != nil:
		return "welcome"
	case frame.Snapshot != nil:
		return "snapshot"
	default:
		return "message"
	}
}

func writeEvent(w io.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
