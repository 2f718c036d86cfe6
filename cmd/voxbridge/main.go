// Command voxbridge is the real-time speech translation bridge daemon.
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

	"github.com/voxbridge/voxbridge/internal/app"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/internal/resilience"
	"github.com/voxbridge/voxbridge/pkg/provider/translate"
	translatemock "github.com/voxbridge/voxbridge/pkg/provider/translate/mock"
	oaitranslate "github.com/voxbridge/voxbridge/pkg/provider/translate/openai"
	"github.com/voxbridge/voxbridge/pkg/provider/translate/relay"
	"github.com/voxbridge/voxbridge/pkg/provider/vad"
	"github.com/voxbridge/voxbridge/pkg/provider/vad/energy"
)

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
			fmt.Fprintf(os.Stderr, "voxbridge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxbridge: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config reloads can adjust it without a
	// restart.
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("voxbridge starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxbridge",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg, logger)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, providers,
		app.WithLogger(logger),
		app.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	// Language pair and log level apply live; everything else needs a restart.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LanguagesChanged {
			if err := application.SetLanguagePair(d.NewLanguages.User, d.NewLanguages.Peer); err != nil {
				slog.Warn("language swap rejected", "err", err)
			} else {
				slog.Info("language pair updated",
					"user", d.NewLanguages.User, "peer", d.NewLanguages.Peer)
			}
		}
		if d.LogLevelChanged {
			logLevel.Set(d.NewLogLevel.Slog())
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config changes need a restart to apply", "paths", d.RestartRequired)
		}
	}, config.WithLogger(logger))
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("bridge ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives its config entry and constructs the provider from the
// real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(_ config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Translation ───────────────────────────────────────────────────────────

	reg.RegisterTranslate("openai", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []oaitranslate.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitranslate.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaitranslate.WithChatModel(entry.Model))
		}
		if m := optString(entry.Options, "transcribe_model"); m != "" {
			opts = append(opts, oaitranslate.WithTranscribeModel(m))
		}
		if m := optString(entry.Options, "speech_model"); m != "" {
			opts = append(opts, oaitranslate.WithSpeechModel(m))
		}
		if v := optString(entry.Options, "voice"); v != "" {
			opts = append(opts, oaitranslate.WithVoice(v))
		}
		return oaitranslate.New(entry.APIKey, opts...)
	})

	reg.RegisterTranslate("relay", func(entry config.ProviderEntry) (translate.Provider, error) {
		return relay.New(entry.BaseURL)
	})

	// mock echoes the utterance back untranslated. Useful for exercising the
	// full audio path without an API key.
	reg.RegisterTranslate("mock", func(_ config.ProviderEntry) (translate.Provider, error) {
		return &translatemock.Provider{
			TranslateFunc: func(_ context.Context, req translate.Request) (*translate.Result, error) {
				return &translate.Result{Samples: req.Samples}, nil
			},
		}, nil
	})
}

// buildProviders instantiates the VAD engine and the translation failover
// chain named in cfg. The primary backend and every configured fallback each
// get their own circuit breaker.
func buildProviders(cfg *config.Config, reg *config.Registry, logger *slog.Logger) (*app.Providers, error) {
	ps := &app.Providers{}

	engine, err := reg.CreateVAD(cfg.VAD)
	if err != nil {
		return nil, fmt.Errorf("create vad engine %q: %w", cfg.VAD.Engine, err)
	}
	ps.VAD = engine
	slog.Info("provider created", "kind", "vad", "name", cfg.VAD.Engine)

	primary, err := reg.CreateTranslate(cfg.Translate.Provider)
	if err != nil {
		return nil, fmt.Errorf("create translate provider %q: %w", cfg.Translate.Provider.Name, err)
	}
	slog.Info("provider created", "kind", "translate", "name", cfg.Translate.Provider.Name)

	chain := resilience.NewFallback(cfg.Translate.Provider.Name, primary, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Translate.Breaker.MaxFailures,
			ResetTimeout: cfg.Translate.Breaker.ResetTimeout.Std(),
			HalfOpenMax:  cfg.Translate.Breaker.HalfOpenMax,
		},
		Logger: logger,
	})
	for _, entry := range cfg.Translate.Fallbacks {
		backend, err := reg.CreateTranslate(entry)
		if err != nil {
			return nil, fmt.Errorf("create fallback provider %q: %w", entry.Name, err)
		}
		chain.AddFallback(entry.Name, backend)
		slog.Info("provider created", "kind", "translate", "name", entry.Name, "role", "fallback")
	}
	ps.Translate = chain

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        voxbridge — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Languages", cfg.Languages.User+" ⇄ "+cfg.Languages.Peer)
	printRow("Translate", providerLabel(cfg.Translate.Provider))
	for _, entry := range cfg.Translate.Fallbacks {
		printRow("Fallback", providerLabel(entry))
	}
	printRow("VAD", cfg.VAD.Engine)
	printRow("Virtual mic", cfg.Devices.VirtualMicrophone)
	printRow("Loopback", cfg.Devices.Loopback)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(entry config.ProviderEntry) string {
	if entry.Model != "" {
		return entry.Name + " / " + entry.Model
	}
	return entry.Name
}

func printRow(key, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", key, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
