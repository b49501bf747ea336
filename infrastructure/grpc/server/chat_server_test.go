package server

import (
	"context"
	"live-chat/auth"
	"live-chat/infrastructure/grpc/chatapi"
	"live-chat/repositories"
	"live-chat/runtime"
	"live-chat/services"
	"log/slog"
	"net"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) chatapi.ChatServiceClient {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	resolver := auth.NewStaticResolver(nil)
	registry := runtime.NewRegistry(log, repositories.NewMemoryRepository(runtime.DefaultHistoryLimit))
	service := services.NewChatService(log, registry, resolver, auth.NewMessageValidator(auth.DefaultMaxContentLength))

	listener := bufconn.Listen(1 << 20)
	s := NewGRPCServer(log, resolver, service)
	go func() { _ = s.Serve(listener) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		chatapi.CallOption(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return chatapi.NewChatServiceClient(conn)
}

func connect(t *testing.T, client chatapi.ChatServiceClient, channelID, token string) (chatapi.ChatService_ConnectClient, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(auth.OutgoingContext(context.Background(), token))
	t.Cleanup(cancel)
	stream, err := client.Connect(ctx, &chatapi.ConnectRequest{ChannelID: channelID})
	require.NoError(t, err)

	welcome, err := stream.Recv()
	require.NoError(t, err)
	require.NotNil(t, welcome.Welcome)
	snapshot, err := stream.Recv()
	require.NoError(t, err)
	require.NotNil(t, snapshot.Snapshot)
	return stream, welcome.Welcome.SessionID
}

func TestChatServer_Connect_Requires_Identity(t *testing.T) {
	req := require.New(t)
	client := startServer(t)

	stream, err := client.Connect(context.Background(), &chatapi.ConnectRequest{ChannelID: "game-123"})
	req.NoError(err)

	_, err = stream.Recv()
	req.Equal(codes.Unauthenticated, status.Code(err))
}

func TestChatServer_Connect_Requires_Channel(t *testing.T) {
	req := require.New(t)
	client := startServer(t)

	stream, err := client.Connect(auth.OutgoingContext(context.Background(), "Alice S."), &chatapi.ConnectRequest{})
	req.NoError(err)

	_, err = stream.Recv()
	req.Equal(codes.InvalidArgument, status.Code(err))
}

func TestChatServer_Post_Is_Echoed_On_Stream(t *testing.T) {
	req := require.New(t)
	client := startServer(t)
	stream, sessionID := connect(t, client, "game-123", "Alice S.")

	// When posting through the unary call
	ctx := auth.OutgoingContext(context.Background(), "Alice S.")
	res, err := client.PostMessage(ctx, &chatapi.PostMessageRequest{
		ChannelID: "game-123", SessionID: sessionID, Text: "Hey Bob!",
	})
	req.NoError(err)
	req.Equal("Alice S.", res.Message.DisplayName)
	req.Equal(uint64(1), res.Message.Sequence)

	// Then the same message comes back through the stream
	frame, err := stream.Recv()
	req.NoError(err)
	req.NotNil(frame.Message)
	req.Equal(res.Message.ID, frame.Message.ID)
	req.True(res.Message.CreatedAt.Equal(frame.Message.CreatedAt))

	// And the history holds it
	history, err := client.History(ctx, &chatapi.HistoryRequest{ChannelID: "game-123"})
	req.NoError(err)
	req.Len(history.Messages, 1)
	req.Equal("Hey Bob!", history.Messages[0].Text)
}

func TestChatServer_PostMessage_Errors(t *testing.T) {
	client := startServer(t)
	_, sessionID := connect(t, client, "game-123", "Alice S.")
	ctx := auth.OutgoingContext(context.Background(), "Alice S.")

	tests := []struct {
		name string
		in   *chatapi.PostMessageRequest
		code codes.Code
	}{
		{"Unknown session", &chatapi.PostMessageRequest{ChannelID: "game-123", SessionID: "nope", Text: "hi"}, codes.FailedPrecondition},
		{"Wrong channel", &chatapi.PostMessageRequest{ChannelID: "game-2", SessionID: sessionID, Text: "hi"}, codes.FailedPrecondition},
		{"Blank text", &chatapi.PostMessageRequest{ChannelID: "game-123", SessionID: sessionID, Text: "  "}, codes.InvalidArgument},
		{"Missing channel", &chatapi.PostMessageRequest{SessionID: sessionID, Text: "hi"}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.PostMessage(ctx, tt.in)
			require.Equal(t, tt.code, status.Code(err))
		})
	}

	_, err := client.PostMessage(context.Background(), &chatapi.PostMessageRequest{ChannelID: "game-123", SessionID: sessionID, Text: "hi"})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestChatServer_PostMessage_Rejects_A_Session_Of_Another_Caller(t *testing.T) {
	req := require.New(t)
	client := startServer(t)
	_, sessionID := connect(t, client, "game-123", "Alice S.")

	// When Bob reuses the session id Alice received in her welcome
	_, err := client.PostMessage(auth.OutgoingContext(context.Background(), "Bob"), &chatapi.PostMessageRequest{
		ChannelID: "game-123", SessionID: sessionID, Text: "as Alice",
	})

	// Then the session is unknown to him and nothing was appended
	req.Equal(codes.FailedPrecondition, status.Code(err))
	history, err := client.History(auth.OutgoingContext(context.Background(), "Bob"), &chatapi.HistoryRequest{ChannelID: "game-123"})
	req.NoError(err)
	req.Empty(history.Messages)
}
