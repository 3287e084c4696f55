// Command hidrosense records soil-humidity readings from MQTT, commands the
// irrigation pump when the soil gets too dry and alerts the operator on Telegram.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/hidrosense/internal/ingest"
	"github.com/sweeney/hidrosense/internal/logic"
	"github.com/sweeney/hidrosense/internal/metrics"
	"github.com/sweeney/hidrosense/internal/mqtt"
	"github.com/sweeney/hidrosense/internal/notify"
	"github.com/sweeney/hidrosense/internal/status"
	"github.com/sweeney/hidrosense/internal/store"
	"github.com/sweeney/hidrosense/internal/web"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg Config) error {
	start := time.Now()

	readings, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	register, err := store.NewRegister(logic.Thresholds{
		Activation:   cfg.Activation,
		Deactivation: cfg.deactivation(),
	})
	if err != nil {
		return fmt.Errorf("init thresholds: %w", err)
	}
	evaluator := logic.NewEvaluator(start)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	m.Threshold(cfg.Activation)

	topics := mqtt.DefaultTopics(cfg.TopicPrefix)
	client, err := mqtt.NewRealClient(mqtt.Config{
		Broker:   cfg.Broker,
		Username: cfg.MQTTUser,
		Password: cfg.MQTTPassword,
		Topics:   topics,
	})
	if err != nil {
		return fmt.Errorf("connect mqtt: %w", err)
	}
	defer client.Close()

	telegram := notify.NewTelegram(notify.TelegramConfig{
		Token:   cfg.TelegramToken,
		ChatID:  cfg.TelegramChatID,
		Timeout: cfg.NotifyTimeout,
	})
	if !telegram.Configured() {
		log.Printf("telegram not configured, operator alerts disabled")
	}
	notifier := notify.New(client, telegram, cfg.NotifyTimeout, m)

	tracker := status.NewTracker(start, status.Config{
		Broker:             cfg.Broker,
		TopicPrefix:        cfg.TopicPrefix,
		HTTPAddr:           cfg.HTTPAddr,
		HeartbeatMs:        cfg.Heartbeat.Milliseconds(),
		StoreKind:          cfg.storeKind(),
		TelegramConfigured: telegram.Configured(),
	}, status.Sources{
		Evaluator: evaluator,
		Register:  register,
		Store:     readings,
		MQTT:      client,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := notify.NewDispatcher(notifier, cfg.QueueSize)
	dispatcher.OnDone(tracker.RecordDelivery)
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	listener := ingest.NewListener(topics, readings, register, evaluator, dispatcher, m)
	if err := listener.Subscribe(client); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := client.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, web.Deps{
			Tracker:    tracker,
			Store:      readings,
			Register:   register,
			Thresholds: client,
			Notifier:   notifier,
			Alerter:    telegram,
			Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			srv.Shutdown(shutdownCtx)
		}()
		log.Printf("http server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: broker=%s prefix=%s store=%s activation=%d heartbeat=%v",
		cfg.Broker, cfg.TopicPrefix, cfg.storeKind(), cfg.Activation, cfg.Heartbeat)

	var tick <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(client, tracker, time.Now, tick, sigCh)
}

// openStore builds the reading store chosen by cfg and returns a func that
// releases everything it opened.
func openStore(cfg Config) (store.Store, func(), error) {
	var (
		s   store.Store
		err error
	)
	if cfg.DBPath != "" {
		s, err = store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		log.Printf("storing readings in %s", cfg.DBPath)
	} else {
		s = store.NewMemoryStore()
		log.Printf("storing readings in memory")
	}

	if cfg.InfluxURL == "" {
		return s, func() { s.Close() }, nil
	}

	influx := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	mirror := store.NewInfluxMirror(s, influx.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket), "humidity", cfg.TopicPrefix)
	log.Printf("mirroring readings to influxdb %s bucket=%s", cfg.InfluxURL, cfg.InfluxBucket)

	return mirror, func() {
		mirror.Close()
		influx.Close()
	}, nil
}

// runLoop publishes heartbeats on tick until a signal arrives, then
// publishes SHUTDOWN. The clock is injectable for tests.
func runLoop(publisher mqtt.Publisher, tracker *status.Tracker, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			hbEvent := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				snap := tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v evaluations=%d activations=%d deactivations=%d mqtt=%v",
					snap.Uptime().Truncate(time.Second), snap.Counts.Evaluations, snap.Counts.Activations,
					snap.Counts.Deactivations, snap.MQTTConnected)
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}
