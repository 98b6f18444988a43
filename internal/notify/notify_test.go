package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, enable bool) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(Config{
		Enable:       enable,
		CoolDownSec:  60,
		ValidTimeSec: 300,
		EmailCodeLen: 6,
		From:         "noreply@example.com",
		FromName:     "dMail",
	}, rdb)
}

func TestDisabledFacadeAlwaysConsumes(t *testing.T) {
	s := newTestService(t, false)
	ctx := context.Background()

	require.NoError(t, s.SendCode(ctx, "a@b.com"))
	ok, err := s.CheckAndConsume(ctx, "a@b.com", "anything")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckAndConsumeRejectsWrongCode(t *testing.T) {
	s := newTestService(t, true)
	ctx := context.Background()

	// Seed a code directly, bypassing SMTP delivery (no relay in tests).
	require.NoError(t, s.rdb.Set(ctx, codeKey("a@b.com"), "123456", 5*time.Minute).Err())

	ok, err := s.CheckAndConsume(ctx, "a@b.com", "000000")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.CheckAndConsume(ctx, "a@b.com", "123456")
	require.NoError(t, err)
	require.True(t, ok)

	// Second consume of the same code fails: it was removed on success.
	ok, err = s.CheckAndConsume(ctx, "a@b.com", "123456")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSendCodeRespectsCoolDown(t *testing.T) {
	s := newTestService(t, true)
	ctx := context.Background()

	require.NoError(t, s.rdb.Set(ctx, cooldownKey("a@b.com"), 1, time.Minute).Err())
	require.ErrorIs(t, s.SendCode(ctx, "a@b.com"), ErrCoolingDown)
}
