package repositories

import (
	"fmt"
	"live-chat/contract"
	"live-chat/domain"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ contract.MessageRepository = MessageRepository{}

const (
	// KeyPrefix starts every message key.
	KeyPrefix = "msg:"
	// maxSequenceKey sorts after every 20-digit padded sequence.
	maxSequenceKey = "99999999999999999999"
)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{escaped channel}:{sequence padded}" so that a
// prefix scan returns a channel log in append order. Channel ids are query-escaped
// so that "game-1" never shares a prefix with "game-1:extra".
func (m MessageRepository) StoreMessage(message domain.Message) error {
	value, err := toStruct(message)
	if err != nil {
		return err
	}
	bytes, err := proto.Marshal(value)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.ChannelID, message.Sequence), bytes)
	})
}

// GetMessages walks the channel log backwards from before, then returns the page oldest first.
func (m MessageRepository) GetMessages(channelID domain.ChannelID, before uint64, limit int) ([]domain.Message, error) {
	var reversed []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := channelPrefix(channelID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append([]byte{}, prefix...)
		switch before {
		case 0:
			seekKey = append(seekKey, []byte(maxSequenceKey)...)
		default:
			seekKey = messageKey(channelID, before-1)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(reversed) == limit {
				break
			}
			var message domain.Message
			err := it.Item().Value(func(value []byte) error {
				var err error
				message, err = DecodeMessage(value)
				return err
			})
			if err != nil {
				return err
			}
			reversed = append(reversed, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return domain.NewestFirst(reversed), nil
}

func (m MessageRepository) LastSequence(channelID domain.ChannelID) (uint64, error) {
	var last uint64
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := channelPrefix(channelID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		it.Seek(append(append([]byte{}, prefix...), []byte(maxSequenceKey)...))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		seq, err := strconv.ParseUint(string(it.Item().Key()[len(prefix):]), 10, 64)
		if err != nil {
			return fmt.Errorf("corrupted key %q: %w", it.Item().Key(), err)
		}
		last = seq
		return nil
	})
	return last, err
}

func (m MessageRepository) DeleteChannel(channelID domain.ChannelID) error {
	m.log.Debug("Dropping channel log", "channel_id", channelID)
	return m.db.DropPrefix(channelPrefix(channelID))
}

func channelPrefix(channelID domain.ChannelID) []byte {
	return []byte(KeyPrefix + url.QueryEscape(channelID.String()) + ":")
}

func messageKey(channelID domain.ChannelID, sequence uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", channelPrefix(channelID), sequence))
}

// DecodeMessage reads a value written by StoreMessage.
func DecodeMessage(value []byte) (domain.Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(value, &s); err != nil {
		return domain.Message{}, err
	}
	return fromStruct(&s)
}

func toStruct(message domain.Message) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":           message.ID,
		"sequence":     strconv.FormatUint(message.Sequence, 10),
		"channel_id":   message.ChannelID.String(),
		"display_name": message.DisplayName,
		"text":         message.Text,
		"created_at":   message.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func fromStruct(s *structpb.Struct) (domain.Message, error) {
	fields := s.GetFields()
	seq, err := strconv.ParseUint(fields["sequence"].GetStringValue(), 10, 64)
	if err != nil {
		return domain.Message{}, fmt.Errorf("invalid sequence: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"].GetStringValue())
	if err != nil {
		return domain.Message{}, fmt.Errorf("invalid created_at: %w", err)
	}
	return domain.Message{
		ID:          fields["id"].GetStringValue(),
		Sequence:    seq,
		ChannelID:   domain.ChannelID(fields["channel_id"].GetStringValue()),
		DisplayName: fields["display_name"].GetStringValue(),
		Text:        fields["text"].GetStringValue(),
		CreatedAt:   createdAt.UTC(),
	}, nil
}
