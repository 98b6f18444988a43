package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
)

func uploadTicketKey(id string) string   { return "upload:" + id }
func publicURLKey(hash string) string    { return "file:public:" + hash }

// WriteUploadTicket persists a fresh upload ticket and returns its id.
func (s *Store) WriteUploadTicket(ctx context.Context, t model.UploadTicket) (string, error) {
	if t.UploadID == "" {
		t.UploadID = uuid.New().String()
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return "", wrap(err)
	}
	if err := s.rdb.Set(ctx, uploadTicketKey(t.UploadID), raw, 0).Err(); err != nil {
		return "", wrap(err)
	}
	return t.UploadID, nil
}

// GetUploadTicket loads a previously issued upload ticket.
func (s *Store) GetUploadTicket(ctx context.Context, uploadID string) (*model.UploadTicket, error) {
	raw, err := s.rdb.Get(ctx, uploadTicketKey(uploadID)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: upload ticket %s", ErrStorage, uploadID)
	}
	if err != nil {
		return nil, wrap(err)
	}
	t := &model.UploadTicket{}
	if err := json.Unmarshal([]byte(raw), t); err != nil {
		return nil, wrap(err)
	}
	return t, nil
}

// GetCachedPublicURL returns the presigned URL cached for hash, or nil
// if no cache entry exists.
func (s *Store) GetCachedPublicURL(ctx context.Context, hash string) (*model.PresignedURL, error) {
	raw, err := s.rdb.Get(ctx, publicURLKey(hash)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	u := &model.PresignedURL{}
	if err := json.Unmarshal([]byte(raw), u); err != nil {
		return nil, wrap(err)
	}
	return u, nil
}

// StorePublicURL caches a presigned URL under hash for later reuse.
func (s *Store) StorePublicURL(ctx context.Context, hash string, url model.PresignedURL) error {
	raw, err := json.Marshal(url)
	if err != nil {
		return wrap(err)
	}
	return wrap(s.rdb.Set(ctx, publicURLKey(hash), raw, 0).Err())
}
