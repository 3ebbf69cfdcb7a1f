package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/conea/internal/bridge"
	"github.com/dukerupert/conea/internal/config"
	"github.com/dukerupert/conea/internal/database"
	"github.com/dukerupert/conea/internal/digest"
	"github.com/dukerupert/conea/internal/email"
	"github.com/dukerupert/conea/internal/logging"
	"github.com/dukerupert/conea/internal/notification"
	"github.com/dukerupert/conea/internal/push"
	"github.com/dukerupert/conea/internal/server"
	"github.com/dukerupert/conea/internal/store"
	ws "github.com/dukerupert/conea/internal/websocket"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "vapid" {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate VAPID keys: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("CONEA_VAPID_PUBLIC_KEY=%s\nCONEA_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, logger); err != nil {
		logger.Error("conea stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	kv := store.NewKVStore(db)
	pushStore := store.NewPushStore(db)
	hub := ws.NewHub(logger.With("component", "websocket"))

	opts := []notification.Option{notification.WithLogger(logger.With("component", "notification"))}

	// Desktop alerts over web push
	var pushDeps *server.Push
	if cfg.PushEnabled() {
		pushSvc := push.NewService(cfg.VAPID.PublicKey, cfg.VAPID.PrivateKey, cfg.VAPID.Subscriber)
		platform := push.NewPlatform(pushSvc, pushStore, kv, logger.With("component", "push"), func(context.Context) {
			hub.Broadcast(ws.PermissionRequested())
		})
		opts = append(opts, notification.WithDesktop(platform))
		pushDeps = &server.Push{Subscriptions: pushStore, Service: pushSvc, Platform: platform}
	} else {
		logger.Info("VAPID keys not set, desktop notifications disabled")
	}

	var mailer *email.Client
	if cfg.EmailEnabled() {
		mailer = email.NewClient(cfg.Postmark.Token, cfg.FromEmail, cfg.DigestTo, cfg.BaseURL)
		opts = append(opts, notification.WithMailer(mailer))
	}

	b, err := openBridge(ctx, cfg, logger.With("component", "bridge"))
	if err != nil {
		return err
	}
	var ingress *server.Ingress
	if b != nil {
		defer b.Close()
		opts = append(opts, notification.WithBridge(b, cfg.Bridge.Channel))
		if pub, ok := b.(bridge.Publisher); ok {
			ingress = &server.Ingress{Publisher: pub, Channel: cfg.Bridge.Channel}
		}
	}

	svc := notification.NewService(store.NewNotificationStore(kv), opts...)
	defer svc.Close()

	provider := notification.NewProvider(svc, logger.With("component", "provider"))
	srv := server.New(provider, hub, pushDeps, ingress, cfg.AllowedOrigins, logger)
	provider.Mount()
	defer provider.Unmount()
	go srv.CleanupLoop(10*time.Minute, ctx.Done())

	if mailer != nil {
		sched := digest.NewScheduler(svc, mailer, kv, logger.With("component", "digest"))
		sched.Start(ctx)
		defer sched.Stop()
	}

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv.Router(),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("conea listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type closingBridge interface {
	bridge.Bridge
	Close() error
}

// openBridge connects the configured real-time bridge. It returns nil when
// no bridge is configured.
func openBridge(ctx context.Context, cfg *config.Config, logger *slog.Logger) (closingBridge, error) {
	switch cfg.Bridge.Kind {
	case config.BridgeLocal:
		return bridge.NewLocal(), nil
	case config.BridgeWebSocket:
		b := bridge.NewWebSocket(cfg.Bridge.URL, logger)
		go func() {
			if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("bridge stopped", "error", err)
			}
		}()
		return b, nil
	case config.BridgeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		return bridge.NewRedis(client, logger), nil
	}
	return nil, nil
}
