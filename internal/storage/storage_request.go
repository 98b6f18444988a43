package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
)

// ErrAlreadySolved is returned by SetState when the request is no
// longer in the Unsolved state.
var ErrAlreadySolved = errors.New("storage: request already solved")

func reqKey(id uint64) string { return fmt.Sprintf("req:%d", id) }

// WriteRequest assigns a fresh reqId, persists the request row, and adds
// it to the sender's and every handler's request-ordered set.
func (s *Store) WriteRequest(ctx context.Context, senderID uint32, message string, content model.RequestContent, handlers []uint32) (*model.Request, error) {
	id64, err := s.rdb.Incr(ctx, "req:seq").Result()
	if err != nil {
		return nil, wrap(err)
	}
	req := &model.Request{
		ReqID:    uint64(id64),
		SenderID: senderID,
		Message:  message,
		Content:  content,
		State:    model.RequestUnsolved,
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, wrap(err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, reqKey(req.ReqID), map[string]interface{}{
		"senderId": senderID,
		"message":  message,
		"content":  contentJSON,
		"state":    string(model.RequestUnsolved),
	})
	pipe.ZAdd(ctx, userRequestsKey(senderID), redis.Z{Score: float64(req.ReqID), Member: req.ReqID})
	for _, h := range handlers {
		pipe.ZAdd(ctx, userRequestsKey(h), redis.Z{Score: float64(req.ReqID), Member: req.ReqID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, wrap(err)
	}
	return req, nil
}

// GetRequest loads a request row by id.
func (s *Store) GetRequest(ctx context.Context, reqID uint64) (*model.Request, error) {
	vals, err := s.rdb.HGetAll(ctx, reqKey(reqID)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	if len(vals) == 0 {
		return nil, ErrRequestNotFound
	}
	senderID, _ := strconv.ParseUint(vals["senderId"], 10, 32)
	var content model.RequestContent
	if err := json.Unmarshal([]byte(vals["content"]), &content); err != nil {
		return nil, wrap(err)
	}
	return &model.Request{
		ReqID:    reqID,
		SenderID: uint32(senderID),
		Message:  vals["message"],
		Content:  content,
		State:    model.RequestState(vals["state"]),
	}, nil
}

// SetState atomically transitions a request from Unsolved to a terminal
// state, returning ErrAlreadySolved if it is not currently Unsolved.
func (s *Store) SetState(ctx context.Context, reqID uint64, state model.RequestState) error {
	key := reqKey(reqID)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, "state").Result()
		if err != nil {
			return err
		}
		if model.RequestState(cur) != model.RequestUnsolved {
			return ErrAlreadySolved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "state", string(state))
			return nil
		})
		return err
	}
	err := s.rdb.Watch(ctx, txf, key)
	if err == ErrAlreadySolved {
		return ErrAlreadySolved
	}
	return wrap(err)
}

// ListForUser returns request ids addressed to or sent by userID with
// id greater than startReqID, oldest first.
func (s *Store) ListForUser(ctx context.Context, userID uint32, startReqID uint64) ([]uint64, error) {
	members, err := s.rdb.ZRangeByScore(ctx, userRequestsKey(userID), &redis.ZRangeBy{
		Min: fmt.Sprintf("(%d", startReqID),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, wrap(err)
	}
	out := make([]uint64, 0, len(members))
	for _, m := range members {
		v, _ := strconv.ParseUint(m, 10, 64)
		out = append(out, v)
	}
	return out, nil
}
