package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	osSignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/RyanBlaney/sonido-pulso/broadcast"
	"github.com/RyanBlaney/sonido-pulso/config"
	"github.com/RyanBlaney/sonido-pulso/ingest"
	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/pipeline"
	"github.com/RyanBlaney/sonido-pulso/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file (defaults apply when empty)")
		logLevel   = flag.String("log-level", "", "override log_level from the config")
		natsURL    = flag.String("nats", "", "override ingest.nats_url from the config")
		activity   = flag.String("activity", "", "override telemetry.activity from the config")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logging.Fatal(err, "failed to load config", logging.Fields{"path": *configPath})
		}
		cfg = loaded
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *natsURL != "" {
		cfg.Ingest.NATSURL = *natsURL
	}
	if *activity != "" {
		cfg.Telemetry.Activity = *activity
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal(err, "invalid configuration")
	}
	logging.SetLevel(cfg.Level())

	ctx, stop := osSignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal(err, "pulsod exited with error")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.Component("pulsod")

	nc, err := telemetry.Connect(cfg.Ingest.NATSURL, "pulsod")
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Ingest.NATSURL, err)
	}
	defer nc.Drain()

	var pipelines []*pipeline.Pipeline
	defer func() {
		for _, p := range pipelines {
			p.Stop()
		}
	}()

	var steps, heart *pipeline.Pipeline
	if cfg.Step.Enabled {
		pc, err := cfg.Step.Pipeline(false)
		if err != nil {
			return err
		}
		if steps, err = pipeline.New(pc); err != nil {
			return err
		}
		pipelines = append(pipelines, steps)
	}
	if cfg.Heartbeat.Enabled {
		pc, err := cfg.Heartbeat.Pipeline(true)
		if err != nil {
			return err
		}
		if heart, err = pipeline.New(pc); err != nil {
			return err
		}
		pipelines = append(pipelines, heart)
	}
	if len(pipelines) == 0 {
		return errors.New("no pipeline enabled")
	}

	if cfg.Telemetry.Enabled {
		client, err := newTelemetryClient(ctx, cfg.Telemetry, nc)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Error(err, "failed to flush telemetry")
			}
		}()
		identity := telemetry.NewIdentity(cfg.Telemetry.UserID, cfg.Telemetry.DeviceType, cfg.Telemetry.DeviceID)
		fwd := telemetry.NewForwarder(client, identity, cfg.Telemetry.SampleEvery)
		fwd.SetActivity(cfg.Telemetry.Activity)
		for _, p := range pipelines {
			p.Subscribe("telemetry", fwd)
		}
		logger.Info("telemetry enabled", logging.Fields{
			"sink":       cfg.Telemetry.Sink,
			"activity":   cfg.Telemetry.Activity,
			"session_id": identity.SessionID,
		})
	}

	var server *http.Server
	if cfg.Broadcast.Enabled {
		hub := broadcast.NewHub(nil)
		defer hub.Close()
		for _, p := range pipelines {
			p.Subscribe("broadcast", hub)
		}

		mux := http.NewServeMux()
		mux.Handle(cfg.Broadcast.Path, hub)
		mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
			stats := make(map[string]pipeline.Stats, len(pipelines))
			for _, p := range pipelines {
				stats[p.Kind().String()] = p.Stats()
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(stats)
		})
		server = &http.Server{Addr: cfg.Broadcast.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("broadcast server listening", logging.Fields{"addr": cfg.Broadcast.Addr})
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(err, "broadcast server failed")
			}
		}()
	}

	var routes []ingest.Route
	if steps != nil {
		routes = append(routes,
			ingest.Route{Subject: cfg.Ingest.AccelSubject, Decode: ingest.Accel, Feeder: steps},
		)
		if cfg.Ingest.StepCounterSubject != "" {
			// A separate subject means a second producer goroutine; the
			// pipeline mutex serializes them.
			routes = append(routes,
				ingest.Route{Subject: cfg.Ingest.StepCounterSubject, Decode: ingest.Steps, Feeder: steps},
			)
		}
	}
	if heart != nil {
		routes = append(routes, ingest.Route{Subject: cfg.Ingest.PPGSubject, Decode: ingest.PPG, Feeder: heart})
	}
	subs, err := ingest.Subscribe(nc, routes, nil)
	if err != nil {
		return err
	}
	defer unsubscribe(subs)

	subjects := make([]string, len(routes))
	for i, r := range routes {
		subjects[i] = r.Subject
	}
	logger.Info("pulsod running", logging.Fields{"subjects": strings.Join(subjects, ",")})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = server.Shutdown(shutdownCtx)
				cancel()
			}
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			for _, p := range pipelines {
				if err := p.Flush(flushCtx); err != nil {
					logger.Warn("pipeline notifications not flushed", logging.Fields{"kind": p.Kind().String(), "error": err.Error()})
				}
			}
			cancel()
			return nil
		case <-ticker.C:
			for _, p := range pipelines {
				report(logger, p)
			}
		}
	}
}

func newTelemetryClient(ctx context.Context, cfg config.TelemetryConfig, nc *nats.Conn) (*telemetry.Client, error) {
	var (
		sink telemetry.Sink
		err  error
	)
	switch strings.ToLower(cfg.Sink) {
	case "nats":
		sink = telemetry.NewNATSSink(nc, cfg.NATSSubject, false)
	case "mqtt":
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		sink, err = telemetry.DialMQTT(dialCtx, cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
	case "sqlite":
		sink, err = telemetry.OpenSQLite(cfg.SQLitePath)
	default:
		err = fmt.Errorf("unknown telemetry sink %q", cfg.Sink)
	}
	if err != nil {
		return nil, err
	}
	return telemetry.NewClient(sink, cfg.QueueSize), nil
}

// report logs the current rate next to the spectral estimate when one is
// available; a large disagreement points at missed or doubled detections.
func report(logger logging.Logger, p *pipeline.Pipeline) {
	perWindow, warming := p.Rate()
	fields := logging.Fields{
		"pipeline":   p.Kind().String(),
		"rate":       perWindow,
		"warming_up": warming,
		"dropped":    p.Stats().Dropped,
	}
	if est, err := p.SpectralRate(); err == nil {
		fields["spectral_rate"] = fmt.Sprintf("%.1f", est.PerMinute)
	}
	if est, err := p.AutocorrelationRate(); err == nil {
		fields["autocorr_rate"] = fmt.Sprintf("%.1f", est.PerMinute)
	}
	logger.Info("pipeline status", fields)
}

func unsubscribe(subs []*nats.Subscription) {
	for _, s := range subs {
		_ = s.Unsubscribe()
	}
}
