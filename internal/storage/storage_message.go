package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
)

func chatLastMsgIDKey(chatID uint64) string { return fmt.Sprintf("chat:%d:lastmsgid", chatID) }
func chatMessagesKey(chatID uint64) string  { return fmt.Sprintf("chat:%d:messages", chatID) }

// WriteMessage atomically allocates the next inChatId for chatID and
// persists the message, returning the fully populated row.
func (s *Store) WriteMessage(ctx context.Context, msgType model.MessageType, content string, chatID uint64, senderID uint32) (*model.ChatMessage, error) {
	inChatID64, err := s.rdb.Incr(ctx, chatLastMsgIDKey(chatID)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	msg := &model.ChatMessage{
		Type:              msgType,
		InChatID:          uint64(inChatID64),
		ChatID:            chatID,
		SenderID:          senderID,
		SerializedContent: content,
		Timestamp:         time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, wrap(err)
	}
	if err := s.rdb.HSet(ctx, chatMessagesKey(chatID), strconv.FormatUint(msg.InChatID, 10), raw).Err(); err != nil {
		return nil, wrap(err)
	}
	return msg, nil
}

// LastMessageID returns the most recently allocated inChatId for a chat
// (0 if the chat has no messages yet).
func (s *Store) LastMessageID(ctx context.Context, chatID uint64) (uint64, error) {
	v, err := s.rdb.Get(ctx, chatLastMsgIDKey(chatID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(err)
	}
	n, _ := strconv.ParseUint(v, 10, 64)
	return n, nil
}

func (s *Store) readMessage(ctx context.Context, chatID, inChatID uint64) (*model.ChatMessage, error) {
	raw, err := s.rdb.HGet(ctx, chatMessagesKey(chatID), strconv.FormatUint(inChatID, 10)).Result()
	if err == redis.Nil {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, wrap(err)
	}
	msg := &model.ChatMessage{}
	if err := json.Unmarshal([]byte(raw), msg); err != nil {
		return nil, wrap(err)
	}
	return msg, nil
}

// GetMessage loads a single message by its in-chat id.
func (s *Store) GetMessage(ctx context.Context, chatID, inChatID uint64) (*model.ChatMessage, error) {
	return s.readMessage(ctx, chatID, inChatID)
}

// GetRange returns every stored message in [from, to] for a chat. A to
// of 0 means "through the last allocated id".
func (s *Store) GetRange(ctx context.Context, chatID, from, to uint64) ([]model.ChatMessage, error) {
	if to == 0 {
		last, err := s.LastMessageID(ctx, chatID)
		if err != nil {
			return nil, err
		}
		to = last
	}
	var out []model.ChatMessage
	for i := from; i <= to; i++ {
		msg, err := s.readMessage(ctx, chatID, i)
		if err == ErrMessageNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, nil
}

// LastNOfEachChat returns up to maxPerChat most recent messages for
// every chat id given, used to seed the login-time Pull.
func (s *Store) LastNOfEachChat(ctx context.Context, chatIDs []uint64, maxPerChat int) (map[uint64][]model.ChatMessage, error) {
	out := make(map[uint64][]model.ChatMessage, len(chatIDs))
	for _, cid := range chatIDs {
		last, err := s.LastMessageID(ctx, cid)
		if err != nil {
			return nil, err
		}
		from := uint64(1)
		if last > uint64(maxPerChat) {
			from = last - uint64(maxPerChat) + 1
		}
		msgs, err := s.GetRange(ctx, cid, from, last)
		if err != nil {
			return nil, err
		}
		out[cid] = msgs
	}
	return out, nil
}

// Revoke rewrites the message at inChatID as a Revoked tombstone,
// preserving its position (inChatId) and original timestamp.
func (s *Store) Revoke(ctx context.Context, chatID, inChatID uint64) (*model.ChatMessage, error) {
	msg, err := s.readMessage(ctx, chatID, inChatID)
	if err != nil {
		return nil, err
	}
	msg.Type = model.MessageRevoked
	msg.SerializedContent = ""
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, wrap(err)
	}
	if err := s.rdb.HSet(ctx, chatMessagesKey(chatID), strconv.FormatUint(inChatID, 10), raw).Err(); err != nil {
		return nil, wrap(err)
	}
	return msg, nil
}
