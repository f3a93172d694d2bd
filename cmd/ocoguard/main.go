package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"oco-guard/internal/alert"
	"oco-guard/internal/config"
	"oco-guard/internal/exchange/binance"
	"oco-guard/internal/guard"
	"oco-guard/internal/status"
	"oco-guard/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}

	alerts := buildAlertManager(cfg)
	if alerts != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := alerts.Close(closeCtx); err != nil {
				fmt.Fprintf(os.Stderr, "close alert manager failed: %v\n", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	if cfg.State.Dir != "" {
		stateDir := filepath.Join(cfg.State.Dir, cfg.InstanceID)
		st, err = store.New(stateDir)
		if err != nil {
			fatal(err.Error())
		}
		lockTakeover := true
		if cfg.State.LockTakeover != nil {
			lockTakeover = *cfg.State.LockTakeover
		}
		instanceLock, err := store.AcquireInstanceLock(stateDir, store.LockOptions{
			TakeoverEnabled: lockTakeover,
			StaleAfter:      time.Duration(cfg.State.LockStaleSec) * time.Second,
		})
		if err != nil {
			fatal(err.Error())
		}
		defer func() {
			if relErr := instanceLock.Release(); relErr != nil {
				fmt.Fprintf(os.Stderr, "release instance lock failed: %v\n", relErr)
			}
		}()
	}

	client, err := binance.NewClient(cfg.Exchange)
	if err != nil {
		fatal(err.Error())
	}

	tracker := status.NewTracker()
	if cfg.Status.Port > 0 {
		srv := status.NewServer(cfg.Status.Port, tracker)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "status server shutdown failed: %v\n", err)
			}
		}()
		log.Printf("level=INFO event=status_server_started port=%d", cfg.Status.Port)
	}

	canceler := &guard.Canceler{
		Exchange: client,
		Mode:     guard.CancelMode(cfg.Cancel.Mode),
		Prefix:   cfg.Cancel.Prefix,
		Alerts:   alerts,
	}
	runner := &guard.Runner{
		Exchange:     client,
		Canceler:     canceler,
		InstanceID:   cfg.InstanceID,
		Keepalive:    time.Duration(cfg.Exchange.ListenKeyKeepaliveSec) * time.Second,
		BackoffFloor: time.Duration(cfg.Reconnect.BackoffFloorSec) * time.Second,
		BackoffCap:   time.Duration(cfg.Reconnect.BackoffCapSec) * time.Second,
		Tracker:      tracker,
		Store:        st,
		Alerts:       alerts,
	}
	if err := runner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fatal(err.Error())
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func buildAlertManager(cfg config.Config) *alert.Manager {
	tg := cfg.Observability.Telegram
	if !tg.Enabled {
		return nil
	}
	notifier := alert.NewTelegramNotifier(
		tg.BotToken,
		tg.ChatID,
		tg.APIBaseURL,
		time.Duration(tg.TimeoutSec)*time.Second,
	)
	return alert.NewManager(cfg.InstanceID, notifier, alert.ManagerOptions{
		DropReportInterval: time.Duration(cfg.Observability.Runtime.AlertDropReportSec) * time.Second,
	})
}
