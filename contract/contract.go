//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"live-chat/domain"
	"live-chat/domain/event"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Unsubscribe removes one observer. Calling it more than once is a no-op.
type Unsubscribe func()

// Transport is the contract a consumer uses to join a channel, send messages
// and observe snapshot, message, connection and error notifications.
//
// Connect delivers exactly one snapshot (oldest first) before any incremental
// message. SendMessage fails with errors.ErrNotConnected when not connected and
// the sent message is echoed back through OnMessage like any other message.
type Transport interface {
	Connect(ctx context.Context, channelID domain.ChannelID, identityToken string) error
	Disconnect()
	SendMessage(ctx context.Context, text string) (domain.Message, error)
	OnSnapshot(fn func([]domain.Message)) Unsubscribe
	OnMessage(fn func(domain.Message)) Unsubscribe
	OnConnectionChange(fn func(connected bool)) Unsubscribe
	OnError(fn func(error)) Unsubscribe
	Connected() bool
}

// IdentityResolver turns an opaque identity token into the identity it proves.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (domain.Identity, error)
}

// MessageRepository stores channel logs.
// GetMessages returns messages with a sequence lower than before (0 means no bound),
// keeping only the most recent limit entries (0 means no limit), oldest first.
type MessageRepository interface {
	StoreMessage(message domain.Message) error
	GetMessages(channelID domain.ChannelID, before uint64, limit int) ([]domain.Message, error)
	LastSequence(channelID domain.ChannelID) (uint64, error)
	DeleteChannel(channelID domain.ChannelID) error
}

// Subscription is one subscriber endpoint of a broadcast channel.
// Events is closed when the subscription ends; Err then tells why (nil on a voluntary leave).
type Subscription interface {
	ID() string
	Channel() domain.ChannelID
	Identity() domain.Identity
	Events() <-chan event.ChannelEvent
	Err() error
	Close()
}

type IRegistry interface {
	Join(channelID domain.ChannelID, identity domain.Identity) (Subscription, error)
	Publish(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error)
	History(cmd domain.GetHistoryCommand) ([]domain.Message, error)
	Stats() domain.HubStats
	Sweep(idleFor time.Duration) []domain.ChannelID
}
