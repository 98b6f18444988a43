// Package config loads the process-wide configuration from a JSON file
// on disk. If the file is missing, it writes out defaults and exits so
// an operator can review them before the server runs for real.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
)

const defaultPath = "config/config.json"

// TLS holds the optional TLS termination settings.
type TLS struct {
	Enable        bool   `json:"enable"`
	PrivateKeyFile string `json:"privateKeyFile"`
	CertChainFile  string `json:"certChainFile"`
}

// Safety bounds message and notice sizes accepted from clients.
type Safety struct {
	MaxMsgLength    int `json:"maxMsgLength"`
	MaxNoticeLength int `json:"maxNoticeLength"`
}

// Protocol tunes pull/fan-out behavior.
type Protocol struct {
	MaxMessagesPerChatOnPull   int `json:"maxMessagesPerChatOnPull"`
	MaxMessagesPerChatOnGet    int `json:"maxMessagesPerChatOnGet"`
	GroupFanoutWorkerThreshold int `json:"groupFanoutWorkerThreshold"`
}

// Email configures the verification-code SMTP relay.
type Email struct {
	Enable             bool   `json:"enable"`
	Relay              string `json:"relay"`
	RelayPort          int    `json:"relayPort"`
	RelayUserName      string `json:"relayUserName"`
	RelayPassword      string `json:"relayPassword"`
	From               string `json:"from"`
	FromName           string `json:"fromName"`
	ConnectionPoolSize int    `json:"connectionPoolSize"`
	CoolDownSec        int    `json:"coolDownSec"`
	ValidTimeSec       int    `json:"validTimeSec"`
	EmailCodeLen       int    `json:"emailCodeLen"`
}

// Ice configures the Twilio-issued short-lived TURN/STUN credential
// endpoint backing the WebRTC media-call signaling family.
type Ice struct {
	Enable      bool   `json:"enable"`
	AccountSID  string `json:"accountSid"`
	AuthToken   string `json:"authToken"`
	TTLSeconds  int    `json:"ttlSeconds"`
}

// User configures account/session limits.
type User struct {
	TokenExpireTime     int64  `json:"tokenExpireTime"`
	MaxUserNameLength   int    `json:"maxUserNameLength"`
	HeartBeatTime       int64  `json:"heartBeatTime"`
	PasswordCheckRaw    string `json:"passwordCheck"`
	SenderRevokeExpire  int64  `json:"senderRevokeExpire"`

	// PasswordCheck is compiled once at load time from PasswordCheckRaw.
	PasswordCheck *regexp.Regexp `json:"-"`
}

// Database configures the Redis-compatible store connection pool.
type Database struct {
	Address      string `json:"address"`
	PoolMaxOpen  int    `json:"poolMaxOpen"`
	PoolMaxIdle  int    `json:"poolMaxIdle"`
	PoolTimeout  int    `json:"poolTimeout"`
	PoolExpire   int    `json:"poolExpire"`
}

// S3 configures the object-store facade.
type S3 struct {
	Enable               bool   `json:"enable"`
	UseSSL               bool   `json:"useSsl"`
	BucketName           string `json:"bucketName"`
	Region               string `json:"region"`
	Endpoint             string `json:"endpoint"`
	AccessKey            string `json:"accessKey"`
	SecretKey            string `json:"secretKey"`
	PresignPutFileExpire int    `json:"presignPutFileExpire"`
	PresignPutImageExpire int  `json:"presignPutImageExpire"`
	PresignGetExpire     int    `json:"presignGetExpire"`
}

// Config is the process-wide, read-only configuration tree.
type Config struct {
	ServerWorkerNum int      `json:"serverWorkerNum"`
	HTTPWorkerNum   int      `json:"httpWorkerNum"`
	TLS             TLS      `json:"tls"`
	Safety          Safety   `json:"safety"`
	Protocol        Protocol `json:"protocol"`
	Email           Email    `json:"email"`
	User            User     `json:"user"`
	Database        Database `json:"database"`
	S3              S3       `json:"s3"`
	Ice             Ice      `json:"ice"`
}

// Default returns the built-in defaults, mirroring the original
// implementation's Config::default().
func Default() *Config {
	return &Config{
		ServerWorkerNum: 4,
		HTTPWorkerNum:   2,
		TLS: TLS{
			Enable: false,
		},
		Safety: Safety{
			MaxMsgLength:    4096,
			MaxNoticeLength: 1024,
		},
		Protocol: Protocol{
			MaxMessagesPerChatOnPull:   50,
			MaxMessagesPerChatOnGet:    100,
			GroupFanoutWorkerThreshold: 32,
		},
		Email: Email{
			Enable:             false,
			Relay:              "smtp.example.com",
			RelayPort:          587,
			RelayUserName:      "",
			RelayPassword:      "",
			From:               "noreply@example.com",
			FromName:           "dMail",
			ConnectionPoolSize: 4,
			CoolDownSec:        60,
			ValidTimeSec:       300,
			EmailCodeLen:       6,
		},
		User: User{
			TokenExpireTime:    86400,
			MaxUserNameLength:  32,
			HeartBeatTime:      60,
			PasswordCheckRaw:   `^[A-Za-z0-9!@#$%^&*()_+\-=]{8,32}$`,
			SenderRevokeExpire: 120,
		},
		Database: Database{
			Address:     "redis://127.0.0.1:6379",
			PoolMaxOpen: 16,
			PoolMaxIdle: 4,
			PoolTimeout: 5,
			PoolExpire:  300,
		},
		S3: S3{
			Enable:                false,
			UseSSL:                false,
			BucketName:            "dmail-files",
			Region:                "us-east-1",
			Endpoint:              "127.0.0.1:9000",
			AccessKey:             "",
			SecretKey:             "",
			PresignPutFileExpire:  900,
			PresignPutImageExpire: 900,
			PresignGetExpire:      3600,
		},
		Ice: Ice{
			Enable:     false,
			AccountSID: "",
			AuthToken:  "",
			TTLSeconds: 86400,
		},
	}
}

// Load reads the configuration from path (defaultPath if empty). If the
// file does not exist, it writes out Default() to that path, logs a
// message, and exits the process with status 0 so an operator can
// inspect and adjust the generated file before the server actually
// starts serving traffic.
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if writeErr := writeDefault(path, cfg); writeErr != nil {
			return nil, fmt.Errorf("config: write default config: %w", writeErr)
		}
		log.Printf("[Config] no config file found at %s, wrote defaults; review and restart", path)
		os.Exit(0)
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	re, err := regexp.Compile(cfg.User.PasswordCheckRaw)
	if err != nil {
		return nil, fmt.Errorf("config: compile user.passwordCheck: %w", err)
	}
	cfg.User.PasswordCheck = re

	return cfg, nil
}

func writeDefault(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
