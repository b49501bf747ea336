// Package remote implements contract.Transport over the chat gRPC service:
// a server stream carries the snapshot and the messages, a unary call sends.
package remote

import (
	"context"
	"fmt"
	"io"
	"live-chat/auth"
	"live-chat/contract"
	"live-chat/domain"
	"live-chat/errors"
	"live-chat/infrastructure/grpc/chatapi"
	"live-chat/transport"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

var _ contract.Transport = (*Transport)(nil)

// replayLimit bounds the messages kept to answer a repeated Connect.
const replayLimit = 1000

// Transport never reconnects by itself: when the stream ends unexpectedly it reports
// the disconnection and a transport error, and a new Connect fetches a fresh snapshot.
// Connecting again with the same arguments keeps the stream and replays what it delivered
// as a snapshot. Observers must not call Connect or Disconnect from a notification.
type Transport struct {
	*transport.Notifier
	log    *slog.Logger
	client chatapi.ChatServiceClient

	// serializes Connect calls
	connectMu sync.Mutex

	// held while notifying snapshots and messages, guards delivered
	deliverMu sync.Mutex
	delivered []domain.Message

	mu         sync.Mutex
	connected  bool
	generation uint64
	cancel     context.CancelFunc
	channelID  domain.ChannelID
	token      string
	sessionID  string
}

func NewTransport(log *slog.Logger, client chatapi.ChatServiceClient) *Transport {
	return &Transport{
		Notifier: transport.NewNotifier(log),
		log:      log,
		client:   client,
	}
}

// Connect opens the event stream and waits for the welcome and the snapshot.
// ctx bounds this handshake only, the stream itself lives until Disconnect.
func (t *Transport) Connect(ctx context.Context, channelID domain.ChannelID, identityToken string) error {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	t.mu.Lock()
	same := t.connected && t.channelID == channelID && t.token == identityToken
	current := t.generation
	t.mu.Unlock()
	if same && t.replay(current) {
		return nil
	}
	t.Disconnect()

	if channelID.IsZero() {
		return t.fail(fmt.Errorf("%w: %v", errors.ErrConnectionFailed, errors.ErrChannelRequired))
	}
	if strings.TrimSpace(identityToken) == "" {
		return t.fail(fmt.Errorf("%w: %v", errors.ErrConnectionFailed, errors.ErrIdentityRequired))
	}

	streamCtx, cancel := context.WithCancel(auth.OutgoingContext(context.Background(), identityToken))
	stopHandshakeGuard := context.AfterFunc(ctx, cancel)

	stream, err := t.client.Connect(streamCtx, &chatapi.ConnectRequest{ChannelID: channelID.String()})
	if err != nil {
		cancel()
		return t.fail(connectError(err))
	}
	welcome, snapshot, err := handshake(stream)
	if !stopHandshakeGuard() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		return t.fail(connectError(err))
	}

	t.mu.Lock()
	t.generation++
	generation := t.generation
	t.connected = true
	t.cancel = cancel
	t.channelID = channelID
	t.token = identityToken
	t.sessionID = welcome.SessionID
	t.mu.Unlock()

	t.log.Debug("Connected to channel", "channel_id", channelID.String(),
		"session_id", welcome.SessionID, "snapshot_size", len(snapshot.Messages))
	messages := chatapi.ToMessages(snapshot.Messages)
	t.deliverMu.Lock()
	t.delivered = messages
	t.NotifyConnection(true)
	t.NotifySnapshot(messages)
	t.deliverMu.Unlock()

	go t.readLoop(stream, generation)
	return nil
}

// Disconnect cancels the stream. It is synchronous and idempotent.
func (t *Transport) Disconnect() {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return
	}
	t.connected = false
	t.generation++
	t.cancel()
	channelID := t.channelID
	t.mu.Unlock()

	t.log.Debug("Disconnected from channel", "channel_id", channelID.String())
	t.NotifyConnection(false)
}

func (t *Transport) SendMessage(ctx context.Context, text string) (domain.Message, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return domain.Message{}, errors.ErrNotConnected
	}
	channelID, sessionID, token := t.channelID, t.sessionID, t.token
	t.mu.Unlock()

	res, err := t.client.PostMessage(auth.OutgoingContext(ctx, token), &chatapi.PostMessageRequest{
		ChannelID: channelID.String(),
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		err = errors.FromGRPCError(err)
		if errors.Is(err, errors.ErrTransport) {
			t.NotifyError(err)
		}
		return domain.Message{}, err
	}
	return res.Message.ToDomain(), nil
}

// History pages backwards through the channel log, oldest first.
func (t *Transport) History(ctx context.Context, before uint64, limit int) ([]domain.Message, error) {
	t.mu.Lock()
	channelID, token := t.channelID, t.token
	t.mu.Unlock()
	if channelID.IsZero() {
		return nil, errors.ErrNotConnected
	}

	res, err := t.client.History(auth.OutgoingContext(ctx, token), &chatapi.HistoryRequest{
		ChannelID: channelID.String(),
		Before:    before,
		Limit:     int32(limit),
	})
	if err != nil {
		return nil, errors.FromGRPCError(err)
	}
	return chatapi.ToMessages(res.Messages), nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// SessionID is the server side id of the current subscription.
func (t *Transport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// readLoop is the only goroutine notifying messages, which keeps them in stream order.
func (t *Transport) readLoop(stream chatapi.ChatService_ConnectClient, generation uint64) {
	for {
		frame, err := stream.Recv()
		if err != nil {
			t.streamEnded(generation, err)
			return
		}
		if frame.Message != nil {
			t.deliver(generation, frame.Message.ToDomain())
		}
	}
}

func (t *Transport) deliver(generation uint64, message domain.Message) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()
	if !t.current(generation) {
		return
	}
	t.delivered = append(t.delivered, message)
	if len(t.delivered) > replayLimit {
		t.delivered = slices.Clone(t.delivered[len(t.delivered)-replayLimit:])
	}
	t.NotifyMessage(message)
}

// replay notifies everything delivered on the current stream as a snapshot.
// It reports false when the stream of generation is gone.
func (t *Transport) replay(generation uint64) bool {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()
	if !t.current(generation) {
		return false
	}
	t.NotifySnapshot(t.delivered)
	return true
}

func (t *Transport) streamEnded(generation uint64, err error) {
	t.mu.Lock()
	if generation != t.generation || !t.connected {
		// ended by Disconnect or a newer Connect
		t.mu.Unlock()
		return
	}
	t.connected = false
	t.generation++
	t.cancel()
	channelID := t.channelID
	t.mu.Unlock()

	var cause error
	if errors.Is(err, io.EOF) {
		cause = errors.Failure(errors.ErrTransport, "stream closed by server")
	} else {
		cause = fmt.Errorf("%w: %w", errors.ErrTransport, errors.FromGRPCError(err))
	}
	t.log.Warn("Event stream lost", "channel_id", channelID.String(), "error", cause)
	t.NotifyConnection(false)
	t.NotifyError(cause)
}

func (t *Transport) current(generation uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && t.generation == generation
}

func (t *Transport) fail(err error) error {
	t.log.Debug("Connect failed", "error", err)
	t.NotifyError(err)
	return err
}

func handshake(stream chatapi.ChatService_ConnectClient) (*chatapi.Welcome, *chatapi.Snapshot, error) {
	first, err := stream.Recv()
	if err != nil {
		return nil, nil, err
	}
	if first.Welcome == nil {
		return nil, nil, fmt.Errorf("expected welcome frame")
	}
	second, err := stream.Recv()
	if err != nil {
		return nil, nil, err
	}
	if second.Snapshot == nil {
		return nil, nil, fmt.Errorf("expected snapshot frame")
	}
	return first.Welcome, second.Snapshot, nil
}

func connectError(err error) error {
	return fmt.Errorf("%w: %v", errors.ErrConnectionFailed, errors.FromGRPCError(err))
}
