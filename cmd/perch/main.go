// Command perch is the voice satellite daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/perchlabs/perch/internal/audiofocus"
	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/connection/homeassistant"
	"github.com/perchlabs/perch/internal/connection/httpapi"
	"github.com/perchlabs/perch/internal/connection/mqttconn"
	"github.com/perchlabs/perch/internal/connection/webserver"
	"github.com/perchlabs/perch/internal/domain"
	"github.com/perchlabs/perch/internal/history"
	"github.com/perchlabs/perch/internal/indication"
	"github.com/perchlabs/perch/internal/middleware"
	"github.com/perchlabs/perch/internal/observe"
	"github.com/perchlabs/perch/internal/pipeline"
	"github.com/perchlabs/perch/pkg/audio"
	"github.com/perchlabs/perch/pkg/provider/asr/whisper"
	"github.com/perchlabs/perch/pkg/provider/mic/portaudio"
	"github.com/perchlabs/perch/pkg/provider/snd/beep"
	"github.com/perchlabs/perch/pkg/provider/tts/espeak"
	"github.com/perchlabs/perch/pkg/provider/wake"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "perch: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "perch: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("perch starting",
		"config", *configPath,
		"site_id", cfg.SiteID,
		"pipeline", cfg.Pipeline,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Config watcher ────────────────────────────────────────────────────────
	// Sessions take a snapshot at start; a reload takes effect on the next run.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		slog.Info("configuration reloaded", "pipeline", new.Pipeline)
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Connections ───────────────────────────────────────────────────────────
	// Conns fields stay nil for surfaces that are not configured; the bundle
	// factory rejects snapshots whose options point at a missing surface.
	var conns domain.Conns
	var notifier pipeline.SessionNotifier

	var mqttConn *mqttconn.Connection
	if cfg.MQTT.Enabled {
		mqttConn, err = mqttconn.Connect(cfg.MQTT, cfg.SiteID)
		if err != nil {
			slog.Error("failed to connect to MQTT broker", "broker", cfg.MQTT.Broker, "err", err)
			return 1
		}
		defer mqttConn.Close()
		conns.MQTT = mqttConn
		notifier = mqttConn
		slog.Info("mqtt connected", "broker", cfg.MQTT.Broker)
	}

	if cfg.HTTP.BaseURL != "" {
		conns.HTTP = httpapi.NewClient(cfg.HTTP)
		slog.Info("remote http server configured", "base_url", cfg.HTTP.BaseURL)
	}

	if cfg.HomeAssistant.URL != "" {
		conns.HomeAssistant = homeassistant.NewClient(cfg.HomeAssistant)
		slog.Info("home assistant configured", "url", cfg.HomeAssistant.URL, "mode", cfg.HomeAssistant.Mode)
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, cleanup, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer cleanup()

	// ── Shared state ──────────────────────────────────────────────────────────
	focus := audiofocus.New()
	states := indication.NewHub()

	storage, err := audio.NewFileStorage(cfg.AudioDir)
	if err != nil {
		slog.Error("failed to open recording storage", "dir", cfg.AudioDir, "err", err)
		return 1
	}

	// ── History ───────────────────────────────────────────────────────────────
	histLog := history.NewLog(cfg.History.Limit)
	histories := history.Fanout{histLog}
	if dsn := cfg.History.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pool.Close()
		store := history.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("failed to migrate history schema", "err", err)
			return 1
		}
		histories = append(histories, store)
		slog.Info("postgres history store enabled")
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	var observer pipeline.RunObserver
	var metricsSrv *observe.MetricsServer
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			slog.Error("failed to init metrics provider", "err", err)
			return 1
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(flushCtx); err != nil {
				slog.Warn("metrics shutdown error", "err", err)
			}
		}()
		metrics, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			slog.Error("failed to create metrics", "err", err)
			return 1
		}
		observer = observe.NewObserver(metrics)
		metricsSrv = observe.NewMetricsServer(cfg.Metrics)
		slog.Info("metrics enabled", "listen_addr", cfg.Metrics.ListenAddr)
	}

	// ── Web server ────────────────────────────────────────────────────────────
	// The handler is built before the middleware it forwards to; the proxy is
	// filled in below, before any server goroutine starts.
	acts := &commandActions{}
	var webHandler *webserver.Handler
	var webSrv *webserver.Server
	if cfg.WebServer.Enabled {
		webHandler = webserver.New(acts, states, histLog)
		webSrv = webserver.NewServer(cfg.WebServer, webHandler)
		conns.Say = webHandler
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	factory := domain.NewBundleFactory(domain.Deps{
		Providers: providers,
		Conns:     conns,
		Focus:     focus,
		Indicator: states,
		History:   histories,
		Storage:   storage,
	})
	manager := pipeline.NewManager(pipeline.ManagerConfig{
		Provider:  watcher,
		Factory:   factory,
		Focus:     focus,
		Indicator: states,
		Notifier:  notifier,
		Observer:  observer,
	})

	// ── Wake + middleware ─────────────────────────────────────────────────────
	var detector wake.Detector
	if cfg.Domains.Wake.Option == config.OptionLocal {
		detector = &wake.EnergyDetector{Keyword: cfg.Domains.Wake.Keyword}
	}
	var mqttForWake domain.MqttConn
	if mqttConn != nil {
		mqttForWake = mqttConn
	}
	wakeDomain := domain.NewWake(cfg.Domains.Wake, cfg.SiteID, detector, providers.Mic, mqttForWake)

	midDeps := middleware.Deps{
		Runner:   manager,
		Wake:     wakeDomain,
		Provider: watcher,
		Factory:  factory,
		Storage:  storage,
	}
	if mqttConn != nil {
		midDeps.Bus = mqttConn
	}
	mid := middleware.New(midDeps)
	acts.mid = mid

	// ── Run ───────────────────────────────────────────────────────────────────
	printStartupSummary(cfg)
	slog.Info("satellite ready — press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mid.Run(gctx) })
	if webSrv != nil {
		g.Go(func() error { return webSrv.Run(gctx) })
	}
	if metricsSrv != nil {
		g.Go(func() error { return metricsSrv.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping…")
	slog.Info("goodbye")
	return 0
}

// commandActions forwards web requests to the middleware. It exists so the
// web handler can be constructed before the middleware that serves it.
type commandActions struct{ mid *middleware.Middleware }

var _ webserver.Actions = (*commandActions)(nil)

func (a *commandActions) ListenForCommand(ctx context.Context) error {
	if a.mid == nil {
		return errors.New("satellite still starting")
	}
	return a.mid.ListenForCommand(ctx)
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders instantiates the device and engine backends the configured
// domain options need. The returned cleanup closes everything that was
// opened, in reverse order.
func buildProviders(cfg *config.Config) (domain.Providers, func(), error) {
	var ps domain.Providers
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}

	var micOpts []portaudio.Option
	if cfg.Domains.Mic.SampleRate > 0 {
		micOpts = append(micOpts, portaudio.WithSampleRate(cfg.Domains.Mic.SampleRate))
	}
	source, err := portaudio.New(micOpts...)
	if err != nil {
		return ps, cleanup, fmt.Errorf("open capture device: %w", err)
	}
	closers = append(closers, source.Close)
	ps.Mic = source
	slog.Info("provider created", "kind", "mic", "name", "portaudio")

	if cfg.Domains.Asr.Option == config.OptionLocal {
		transcriber, err := whisper.New(cfg.Domains.Asr.ModelPath)
		if err != nil {
			cleanup()
			return ps, func() {}, fmt.Errorf("load whisper model: %w", err)
		}
		closers = append(closers, transcriber.Close)
		ps.Transcriber = transcriber
		slog.Info("provider created", "kind", "asr", "name", "whisper", "model", cfg.Domains.Asr.ModelPath)
	}

	if cfg.Domains.Tts.Option == config.OptionLocal {
		var opts []espeak.Option
		if cfg.Domains.Tts.Voice != "" {
			opts = append(opts, espeak.WithVoice(cfg.Domains.Tts.Voice))
		}
		synth, err := espeak.New(opts...)
		if err != nil {
			cleanup()
			return ps, func() {}, fmt.Errorf("create synthesizer: %w", err)
		}
		closers = append(closers, synth.Close)
		ps.Synthesizer = synth
		slog.Info("provider created", "kind", "tts", "name", "espeak")
	}

	if cfg.Domains.Snd.Option == config.OptionLocal {
		player := beep.New()
		closers = append(closers, player.Close)
		ps.Player = player
		slog.Info("provider created", "kind", "snd", "name", "beep")
	}

	return ps, cleanup, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	d := cfg.Domains
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Perch — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Site", cfg.SiteID)
	printRow("Pipeline", string(cfg.Pipeline))
	printRow("Wake", string(d.Wake.Option))
	printRow("Vad", string(d.Vad.Option))
	printRow("Asr", string(d.Asr.Option))
	printRow("Intent", string(d.Intent.Option))
	printRow("Handle", string(d.Handle.Option))
	printRow("Tts", string(d.Tts.Option))
	printRow("Snd", string(d.Snd.Option))
	if cfg.MQTT.Enabled {
		printRow("MQTT", cfg.MQTT.Broker)
	} else {
		printRow("MQTT", "(disabled)")
	}
	if cfg.WebServer.Enabled {
		printRow("Web server", cfg.WebServer.ListenAddr)
	} else {
		printRow("Web server", "(disabled)")
	}
	if cfg.Metrics.Enabled {
		printRow("Metrics", cfg.Metrics.ListenAddr)
	} else {
		printRow("Metrics", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
