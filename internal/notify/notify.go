// Package notify is the verification-code facade: deliver a 6-digit
// code to an address over SMTP, then check-and-consume it once the
// client replays it back.
package notify

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/gomail.v2"
)

// ErrCoolingDown is returned by SendCode when an address requested a
// code too recently.
var ErrCoolingDown = errors.New("notify: address is cooling down")

// Config mirrors internal/config.Email.
type Config struct {
	Enable             bool
	Relay              string
	RelayPort          int
	RelayUserName      string
	RelayPassword      string
	From               string
	FromName           string
	ConnectionPoolSize int
	CoolDownSec        int
	ValidTimeSec       int
	EmailCodeLen       int
}

// Service sends and verifies email codes, backed by the same Redis
// instance as the rest of the storage facade for TTL/cooldown tracking.
type Service struct {
	cfg   Config
	rdb   *redis.Client
	dial  *gomail.Dialer
}

// New constructs a Service. rdb may be the same client used by
// internal/storage — codes and cooldowns live in their own key space.
func New(cfg Config, rdb *redis.Client) *Service {
	var dial *gomail.Dialer
	if cfg.Enable {
		dial = gomail.NewDialer(cfg.Relay, cfg.RelayPort, cfg.RelayUserName, cfg.RelayPassword)
	}
	return &Service{cfg: cfg, rdb: rdb, dial: dial}
}

func codeKey(addr string) string    { return "email:code:" + addr }
func cooldownKey(addr string) string { return "email:cooldown:" + addr }

// SendCode generates and delivers a fresh code to addr. If the
// notification facade is disabled, this is a no-op. CoolDownSec bounds
// how often one address may request a new code.
func (s *Service) SendCode(ctx context.Context, addr string) error {
	if !s.cfg.Enable {
		return nil
	}

	cooling, err := s.rdb.Exists(ctx, cooldownKey(addr)).Result()
	if err != nil {
		return fmt.Errorf("notify: check cooldown: %w", err)
	}
	if cooling == 1 {
		return ErrCoolingDown
	}

	code, err := randomDigits(s.cfg.EmailCodeLen)
	if err != nil {
		return fmt.Errorf("notify: generate code: %w", err)
	}

	ttl := time.Duration(s.cfg.ValidTimeSec) * time.Second
	if err := s.rdb.Set(ctx, codeKey(addr), code, ttl).Err(); err != nil {
		return fmt.Errorf("notify: store code: %w", err)
	}
	cooldown := time.Duration(s.cfg.CoolDownSec) * time.Second
	if err := s.rdb.Set(ctx, cooldownKey(addr), 1, cooldown).Err(); err != nil {
		return fmt.Errorf("notify: store cooldown: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.cfg.From, s.cfg.FromName)
	msg.SetHeader("To", addr)
	msg.SetHeader("Subject", "Email Code")
	msg.SetBody("text/plain", fmt.Sprintf("您的验证码为：%s, 请在%ds内完成验证", code, s.cfg.ValidTimeSec))

	if err := s.dial.DialAndSend(msg); err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}
	return nil
}

// CheckAndConsume verifies code against what was issued for addr. A
// match removes the stored code (one-time use); a disabled facade
// always succeeds without touching storage.
func (s *Service) CheckAndConsume(ctx context.Context, addr, code string) (bool, error) {
	if !s.cfg.Enable {
		return true, nil
	}

	stored, err := s.rdb.Get(ctx, codeKey(addr)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("notify: load code: %w", err)
	}
	if stored != code {
		return false, nil
	}
	if err := s.rdb.Del(ctx, codeKey(addr)).Err(); err != nil {
		return false, fmt.Errorf("notify: consume code: %w", err)
	}
	return true, nil
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}
