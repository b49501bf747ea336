package services

import (
	"context"
	"live-chat/auth"
	"live-chat/contract"
	"live-chat/domain"
	"log/slog"
)

type IChatService interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
	JoinChannel(channelID domain.ChannelID, identity domain.Identity) (contract.Subscription, error)
	PostMessage(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error)
	GetMessages(cmd domain.GetHistoryCommand) ([]domain.Message, error)
	Stats() domain.HubStats
}

// ChatService is the single entry point shared by the gRPC server and the HTTP gateway.
type ChatService struct {
	log       *slog.Logger
	registry  contract.IRegistry
	resolver  contract.IdentityResolver
	validator *auth.MessageValidator
}

func NewChatService(log *slog.Logger, registry contract.IRegistry,
	resolver contract.IdentityResolver, validator *auth.MessageValidator) *ChatService {
	return &ChatService{log: log, registry: registry, resolver: resolver, validator: validator}
}

func (s *ChatService) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	return s.resolver.Resolve(ctx, token)
}

func (s *ChatService) JoinChannel(channelID domain.ChannelID, identity domain.Identity) (contract.Subscription, error) {
	return s.registry.Join(channelID, identity)
}

// PostMessage validates the text before handing it to the channel, which assigns id, sequence and timestamp.
func (s *ChatService) PostMessage(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	if err := s.validator.ValidatePost(cmd); err != nil {
		s.log.Debug("Message rejected", "channel_id", cmd.ChannelID.String(), "session_id", cmd.SessionID, "error", err)
		return domain.Message{}, err
	}
	return s.registry.Publish(ctx, cmd)
}

func (s *ChatService) GetMessages(cmd domain.GetHistoryCommand) ([]domain.Message, error) {
	return s.registry.History(cmd)
}

func (s *ChatService) Stats() domain.HubStats {
	return s.registry.Stats()
}
