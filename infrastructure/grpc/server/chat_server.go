package server

import (
	"context"
	"live-chat/auth"
	"live-chat/contract"
	"live-chat/domain"
	"live-chat/errors"
	"live-chat/infrastructure/grpc/chatapi"
	"live-chat/services"
	"log/slog"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

type ChatServer struct {
	chatService services.IChatService
	log         *slog.Logger
}

func NewChatServer(log *slog.Logger, chatService services.IChatService) *ChatServer {
	return &ChatServer{chatService: chatService, log: log}
}

// NewGRPCServer builds a gRPC server exposing the chat service behind bearer token authentication.
func NewGRPCServer(log *slog.Logger, resolver contract.IdentityResolver, chatService services.IChatService) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			sdkgrpc.UnaryLoggingInterceptor(log),
			auth.UnaryInterceptor(resolver),
		),
		grpc.ChainStreamInterceptor(auth.StreamInterceptor(resolver)),
	)
	chatapi.RegisterChatServiceServer(s, NewChatServer(log, chatService))
	return s
}

// Connect subscribes the caller to a channel and streams its events.
// The subscription queue is drained by this goroutine only, so a slow client
// ends up evicted instead of slowing the channel down.
func (s *ChatServer) Connect(req *chatapi.ConnectRequest, stream chatapi.ChatService_ConnectServer) error {
	identity, ok := auth.IdentityFromContext(stream.Context())
	if !ok {
		return errors.MapToGRPCError(errors.ErrIdentityRequired)
	}
	channelID := domain.ChannelID(req.ChannelID)
	sub, err := s.chatService.JoinChannel(channelID, identity)
	if err != nil {
		return errors.MapToGRPCError(err)
	}
	defer sub.Close()

	log := s.log.With("channel_id", channelID.String(), "session_id", sub.ID())
	for {
		select {
		case <-stream.Context().Done():
			log.Debug("Client disconnected")
			return nil
		case evt, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					log.Warn("Subscription ended by the channel", "error", err)
					return errors.MapToGRPCError(err)
				}
				return nil
			}
			frame, ok := chatapi.FromEvent(evt)
			if !ok {
				continue
			}
			if err := stream.Send(frame); err != nil {
				log.Error("failed to push event to stream", "error", err)
				return err
			}
		}
	}
}

// PostMessage appends a message on behalf of a connected session.
// The sender also receives it through its Connect stream like any other participant.
func (s *ChatServer) PostMessage(ctx context.Context, req *chatapi.PostMessageRequest) (*chatapi.PostMessageResponse, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, errors.MapToGRPCError(errors.ErrIdentityRequired)
	}
	message, err := s.chatService.PostMessage(ctx, domain.PostMessageCommand{
		ChannelID: domain.ChannelID(req.ChannelID),
		SessionID: req.SessionID,
		Subject:   identity.Subject,
		Text:      req.Text,
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatapi.PostMessageResponse{Message: chatapi.FromMessage(message)}, nil
}

func (s *ChatServer) History(_ context.Context, req *chatapi.HistoryRequest) (*chatapi.HistoryResponse, error) {
	messages, err := s.chatService.GetMessages(domain.GetHistoryCommand{
		ChannelID: domain.ChannelID(req.ChannelID),
		Before:    req.Before,
		Limit:     int(req.Limit),
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatapi.HistoryResponse{Messages: chatapi.FromMessages(messages)}, nil
}
