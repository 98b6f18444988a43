// Command server is the monolith entrypoint: it loads configuration,
// dials Redis and the object store, wires the command dispatcher, and
// serves both the chat websocket and its small HTTP auxiliary surface
// (email verification codes, ICE server credentials, health checks).
package main

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Francis-Rockwell/dmail-server/internal/command"
	"github.com/Francis-Rockwell/dmail-server/internal/config"
	"github.com/Francis-Rockwell/dmail-server/internal/iceservers"
	"github.com/Francis-Rockwell/dmail-server/internal/notify"
	"github.com/Francis-Rockwell/dmail-server/internal/objectstore"
	"github.com/Francis-Rockwell/dmail-server/internal/presence"
	"github.com/Francis-Rockwell/dmail-server/internal/ratelimit"
	"github.com/Francis-Rockwell/dmail-server/internal/session"
	"github.com/Francis-Rockwell/dmail-server/internal/storage"
	"github.com/Francis-Rockwell/dmail-server/internal/workerpool"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	log.Println("[Server] starting dmail-server")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("[Server] load config: %v", err)
	}

	store, err := storage.New(storage.PoolConfig{
		Address:     cfg.Database.Address,
		PoolMaxOpen: cfg.Database.PoolMaxOpen,
		PoolMaxIdle: cfg.Database.PoolMaxIdle,
		PoolTimeout: time.Duration(cfg.Database.PoolTimeout) * time.Second,
		PoolExpire:  time.Duration(cfg.Database.PoolExpire) * time.Second,
	})
	if err != nil {
		log.Fatalf("[Server] connect storage: %v", err)
	}

	healthCtx, healthCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = store.Health(healthCtx)
	healthCancel()
	if err != nil {
		log.Fatalf("[Server] storage health check: %v", err)
	}

	var objects *objectstore.Service
	if cfg.S3.Enable {
		s3Ctx, s3Cancel := context.WithTimeout(context.Background(), 10*time.Second)
		objects, err = objectstore.New(s3Ctx, objectstore.Config{
			Enable:     cfg.S3.Enable,
			Endpoint:   cfg.S3.Endpoint,
			Region:     cfg.S3.Region,
			BucketName: cfg.S3.BucketName,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			UseSSL:     cfg.S3.UseSSL,
		})
		s3Cancel()
		if err != nil {
			log.Fatalf("[Server] connect object store: %v", err)
		}
	} else {
		log.Println("[Server] S3 disabled in config; file upload commands will fail open on every call")
	}

	notifier := notify.New(notify.Config{
		Enable:             cfg.Email.Enable,
		Relay:              cfg.Email.Relay,
		RelayPort:          cfg.Email.RelayPort,
		RelayUserName:      cfg.Email.RelayUserName,
		RelayPassword:      cfg.Email.RelayPassword,
		From:               cfg.Email.From,
		FromName:           cfg.Email.FromName,
		ConnectionPoolSize: cfg.Email.ConnectionPoolSize,
		CoolDownSec:        cfg.Email.CoolDownSec,
		ValidTimeSec:       cfg.Email.ValidTimeSec,
		EmailCodeLen:       cfg.Email.EmailCodeLen,
	}, store.Client())

	reg := presence.New()
	pool := workerpool.New(cfg.ServerWorkerNum, 256)
	defer pool.Shutdown()

	limiter := ratelimit.New(store.Client())

	dispatcher := command.New(store, objects, notifier, reg, pool, cfg)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", handleHealthz(store)).Methods(http.MethodGet)
	router.HandleFunc("/email/code", handleEmailCode(notifier, limiter)).Methods(http.MethodPost)
	if cfg.Ice.Enable {
		router.Handle("/ice-servers", iceservers.New(cfg.Ice.AccountSID, cfg.Ice.AuthToken, cfg.Ice.TTLSeconds)).Methods(http.MethodGet)
	}
	router.HandleFunc("/ws", handleWebsocket(dispatcher, reg, time.Duration(cfg.User.HeartBeatTime)*time.Second))

	httpServer := &http.Server{
		Addr:         resolveAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("[Server] listening on %s", httpServer.Addr)
		var err error
		if cfg.TLS.Enable {
			err = httpServer.ListenAndServeTLS(cfg.TLS.CertChainFile, cfg.TLS.PrivateKeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("[Server] shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] shutdown: %v", err)
	}
}

// clientIP extracts the caller's address for rate limiting, preferring
// the first X-Forwarded-For hop when the server sits behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx != -1 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func resolveAddr() string {
	if addr := os.Getenv("DMAIL_LISTEN_ADDR"); addr != "" {
		return addr
	}
	return ":8443"
}

func handleHealthz(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Health(ctx); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// handleEmailCode issues a fresh verification code to an address,
// consumed later by Register/LogOff/UpdateUserInfo over the websocket.
// Guarded by a per-IP and per-address window on top of notify's own
// per-address cooldown, since spec.md leaves this endpoint's abuse
// limits as an open question.
func handleEmailCode(notifier *notify.Service, limiter *ratelimit.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := limiter.CheckEmailCode(r.Context(), clientIP(r), req.Email); err != nil {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if err := notifier.SendCode(r.Context(), req.Email); err != nil {
			if err == notify.ErrCoolingDown {
				http.Error(w, "cooling down", http.StatusTooManyRequests)
				return
			}
			http.Error(w, "send failed", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleWebsocket upgrades the connection and runs a fresh session
// actor for its lifetime, mirroring the teacher's ServeWs pattern from
// cmd/messaging-service's websocket handler.
func handleWebsocket(dispatcher session.Dispatcher, reg *presence.Registry, heartbeat time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[Server] websocket upgrade: %v", err)
			return
		}
		actor := session.NewActor(conn, dispatcher, reg, heartbeat)
		actor.Run(r.Context())
	}
}
