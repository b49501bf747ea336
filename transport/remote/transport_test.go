package remote

import (
	"context"
	"fmt"
	"live-chat/auth"
	"live-chat/contract"
	"live-chat/domain"
	"live-chat/errors"
	"live-chat/infrastructure/grpc/chatapi"
	"live-chat/infrastructure/grpc/server"
	"live-chat/repositories"
	"live-chat/runtime"
	"live-chat/services"
	"live-chat/session"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

const waitFor = 2 * time.Second

type testServer struct {
	server *grpc.Server
	client chatapi.ChatServiceClient
}

// startServer runs the whole server stack over an in-memory listener.
func startServer(t *testing.T) *testServer {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	resolver := auth.NewStaticResolver(map[string]domain.Identity{
		"tok-alice": {Subject: "u-1", DisplayName: "Alice S."},
		"tok-bob":   {Subject: "u-2", DisplayName: "Bob"},
	})
	registry := runtime.NewRegistry(log, repositories.NewMemoryRepository(runtime.DefaultHistoryLimit))
	service := services.NewChatService(log, registry, resolver, auth.NewMessageValidator(auth.DefaultMaxContentLength))

	listener := bufconn.Listen(1 << 20)
	s := server.NewGRPCServer(log, resolver, service)
	go func() { _ = s.Serve(listener) }()
	t.Cleanup(s.Stop)

	conn, err := NewClientConn("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testServer{server: s, client: chatapi.NewChatServiceClient(conn)}
}

func (s *testServer) transport(t *testing.T) *Transport {
	tr := NewTransport(logs.GetLoggerFromLevel(slog.LevelDebug), s.client)
	t.Cleanup(tr.Disconnect)
	return tr
}

// recorder captures notifications delivered from the read loop goroutine.
type recorder struct {
	mu          sync.Mutex
	snapshots   [][]domain.Message
	messages    []domain.Message
	connections []bool
	errors      []error
}

func record(tr *Transport) *recorder {
	r := &recorder{}
	tr.OnSnapshot(func(m []domain.Message) { r.with(func() { r.snapshots = append(r.snapshots, m) }) })
	tr.OnMessage(func(m domain.Message) { r.with(func() { r.messages = append(r.messages, m) }) })
	tr.OnConnectionChange(func(c bool) { r.with(func() { r.connections = append(r.connections, c) }) })
	tr.OnError(func(err error) { r.with(func() { r.errors = append(r.errors, err) }) })
	return r
}

func (r *recorder) with(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func (r *recorder) received() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message{}, r.messages...)
}

func (r *recorder) waitMessages(t *testing.T, n int) []domain.Message {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.received()) >= n }, waitFor, 5*time.Millisecond)
	return r.received()
}

func TestTransport_Connect_Delivers_Snapshot_Then_Messages(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	alice := srv.transport(t)
	rec := record(alice)

	req.NoError(alice.Connect(context.Background(), "game-123", "tok-alice"))

	req.True(alice.Connected())
	req.NotEmpty(alice.SessionID())
	req.Equal([]bool{true}, rec.connections)
	req.Len(rec.snapshots, 1)
	req.Empty(rec.snapshots[0])

	// The sent message is returned and echoed
	sent, err := alice.SendMessage(context.Background(), "Hey Bob!")
	req.NoError(err)
	req.Equal("Alice S.", sent.DisplayName)
	req.Equal([]domain.Message{sent}, rec.waitMessages(t, 1))

	// Connecting again with the same arguments keeps the stream and replays it as a snapshot
	sessionID := alice.SessionID()
	req.NoError(alice.Connect(context.Background(), "game-123", "tok-alice"))
	req.Equal(sessionID, alice.SessionID())
	req.Equal([]bool{true}, rec.connections)
	rec.mu.Lock()
	req.Len(rec.snapshots, 2)
	req.Equal([]domain.Message{sent}, rec.snapshots[1])
	rec.mu.Unlock()
}

func TestTransport_Connect_Failures(t *testing.T) {
	srv := startServer(t)

	tests := []struct {
		name      string
		channelID domain.ChannelID
		token     string
	}{
		{"Missing channel", "", "tok-alice"},
		{"Missing token", "game-123", ""},
		{"Unknown token", "game-123", "tok-mallory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			tr := srv.transport(t)
			rec := record(tr)

			err := tr.Connect(context.Background(), tt.channelID, tt.token)

			req.ErrorIs(err, errors.ErrConnectionFailed)
			req.False(tr.Connected())
			req.Len(rec.errors, 1)
			req.Empty(rec.snapshots)
		})
	}
}

func TestTransport_SendMessage_Requires_Connection(t *testing.T) {
	srv := startServer(t)
	_, err := srv.transport(t).SendMessage(context.Background(), "hello")
	require.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestTransport_Order_Echo_And_Isolation(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	alice, bob, other := srv.transport(t), srv.transport(t), srv.transport(t)
	aliceRec, bobRec, otherRec := record(alice), record(bob), record(other)
	req.NoError(alice.Connect(context.Background(), "game-1", "tok-alice"))
	req.NoError(bob.Connect(context.Background(), "game-1", "tok-bob"))
	req.NoError(other.Connect(context.Background(), "game-2", "tok-bob"))

	var sent []domain.Message
	for i := 0; i < 5; i++ {
		sender := alice
		if i%2 == 1 {
			sender = bob
		}
		message, err := sender.SendMessage(context.Background(), fmt.Sprintf("m%d", i))
		req.NoError(err)
		sent = append(sent, message)
	}

	req.Equal(sent, aliceRec.waitMessages(t, 5))
	req.Equal(sent, bobRec.waitMessages(t, 5))

	// Nothing leaked into game-2
	_, err := other.SendMessage(context.Background(), "game-2 only")
	req.NoError(err)
	received := otherRec.waitMessages(t, 1)
	req.Len(received, 1)
	req.Equal("game-2 only", received[0].Text)
	req.Len(aliceRec.received(), 5)
}

func TestTransport_Disconnect_Isolation(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	alice, bob := srv.transport(t), srv.transport(t)
	aliceRec, bobRec := record(alice), record(bob)
	req.NoError(alice.Connect(context.Background(), "game-123", "tok-alice"))
	req.NoError(bob.Connect(context.Background(), "game-123", "tok-bob"))

	bob.Disconnect()
	bob.Disconnect()

	_, err := alice.SendMessage(context.Background(), "still here")
	req.NoError(err)
	req.Len(aliceRec.waitMessages(t, 1), 1)

	_, err = bob.SendMessage(context.Background(), "ghost")
	req.ErrorIs(err, errors.ErrNotConnected)
	req.Empty(bobRec.received())
	req.Equal([]bool{true, false}, bobRec.connections)
	req.Empty(bobRec.errors)
}

func TestTransport_Fans_Out_To_Ten_Clients(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)

	var transports []*Transport
	var recorders []*recorder
	for i := 0; i < 10; i++ {
		tr := srv.transport(t)
		recorders = append(recorders, record(tr))
		req.NoError(tr.Connect(context.Background(), "game-123", "tok-bob"))
		transports = append(transports, tr)
	}

	sent, err := transports[4].SendMessage(context.Background(), "broadcast")
	req.NoError(err)

	for _, rec := range recorders {
		req.Equal([]domain.Message{sent}, rec.waitMessages(t, 1))
	}
}

func TestTransport_Stream_Loss_Is_Reported_Without_Reconnect(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	alice := srv.transport(t)
	rec := record(alice)
	req.NoError(alice.Connect(context.Background(), "game-123", "tok-alice"))

	// When the server goes away
	srv.server.Stop()

	// Then the transport reports the disconnection and a transport error
	req.Eventually(func() bool { return !alice.Connected() }, waitFor, 5*time.Millisecond)
	req.Eventually(func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.errors) == 1
	}, waitFor, 5*time.Millisecond)
	rec.mu.Lock()
	req.ErrorIs(rec.errors[0], errors.ErrTransport)
	req.Equal([]bool{true, false}, rec.connections)
	rec.mu.Unlock()

	_, err := alice.SendMessage(context.Background(), "lost")
	req.ErrorIs(err, errors.ErrNotConnected)
}

func TestTransport_History_Pages_Backwards(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	alice := srv.transport(t)
	req.NoError(alice.Connect(context.Background(), "game-123", "tok-alice"))
	for i := 1; i <= 5; i++ {
		_, err := alice.SendMessage(context.Background(), fmt.Sprintf("m%d", i))
		req.NoError(err)
	}

	page, err := alice.History(context.Background(), 4, 2)
	req.NoError(err)
	req.Len(page, 2)
	req.Equal("m2", page[0].Text)
	req.Equal("m3", page[1].Text)
}

func newRemoteController(t *testing.T, srv *testServer) *session.Controller {
	t.Helper()
	c, err := session.New(session.WithTransportFactory(func() contract.Transport {
		return NewTransport(logs.GetLoggerFromLevel(slog.LevelDebug), srv.client)
	}))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func texts(c *session.Controller) []string {
	var res []string
	for _, m := range c.Messages() {
		res = append(res, m.Text)
	}
	return res
}

// Scenario: two participants then a late joiner, end to end over the network transport.
func TestScenario_Controllers_Over_The_Network(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	params := func(token string) session.Params {
		return session.Params{ChannelID: "game-123", IdentityToken: token, Enabled: true}
	}

	alice := newRemoteController(t, srv)
	bob := newRemoteController(t, srv)
	req.NoError(alice.Update(context.Background(), params("tok-alice")))
	req.NoError(bob.Update(context.Background(), params("tok-bob")))

	_, err := alice.SendMessage(context.Background(), "Hey Bob!")
	req.NoError(err)
	req.Eventually(func() bool { return len(bob.Messages()) == 1 }, waitFor, 5*time.Millisecond)
	req.Equal("Alice S.", bob.Messages()[0].DisplayName)

	_, err = bob.SendMessage(context.Background(), "Hi Alice!")
	req.NoError(err)
	for _, c := range []*session.Controller{alice, bob} {
		req.Eventually(func() bool { return len(c.Messages()) == 2 }, waitFor, 5*time.Millisecond)
		req.Equal([]string{"Hi Alice!", "Hey Bob!"}, texts(c))
	}

	// A late joiner sees the history newest first
	late := newRemoteController(t, srv)
	req.NoError(late.Update(context.Background(), params("tok-bob")))
	req.Equal([]string{"Hi Alice!", "Hey Bob!"}, texts(late))
}
