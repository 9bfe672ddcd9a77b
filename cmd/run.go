package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/bellhopd/bellhop/agent"
	"github.com/bellhopd/bellhop/config"
	"github.com/bellhopd/bellhop/connection"
	"github.com/bellhopd/bellhop/logger"
	metrics "github.com/bellhopd/bellhop/metrics/prometheus"
	"github.com/bellhopd/bellhop/notify"
	"github.com/bellhopd/bellhop/platform"
	"github.com/bellhopd/bellhop/platform/gateway"
	"github.com/bellhopd/bellhop/presence"
	"github.com/bellhopd/bellhop/speechcache"
	"github.com/bellhopd/bellhop/tts"
	"github.com/bellhopd/bellhop/version"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the voice presence agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runAgent(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	return cmd
}

func runAgent(parent context.Context, cfg *config.Config) error {
	logger.SetLevel(parseLevel(cfg.LogLevel))
	logger.Info("starting bellhop", version.GetBuildInfo()...)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	census := presence.NewCensus(
		&presence.Classifier{AgentID: cfg.Agent.SelfID},
		cfg.Agent.IgnoredChannels,
	)
	if cfg.Agent.WeightedScorer {
		census.SetScorer(presence.NewScorer())
	}
	manager := connection.NewManager(connection.Config{
		ConnectTimeout: cfg.Connection.ConnectTimeout,
		MaxAttempts:    cfg.Connection.MaxAttempts,
		BackoffBase:    cfg.Connection.BackoffBase,
		SwitchCooldown: cfg.Connection.SwitchCooldown,
		StartupGrace:   cfg.Connection.StartupGrace,
		HealthInterval: cfg.Connection.HealthInterval,
	}, presence.NewEngine(census))

	announcer, cleanup, err := newAnnouncer(ctx, cfg, manager)
	if err != nil {
		return err
	}
	defer cleanup()

	var exporter *metrics.Exporter
	if cfg.Metrics.Enabled {
		exporter = metrics.NewExporter(cfg.Metrics.Addr)
		go func() {
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics exporter failed", "error", err)
			}
		}()
	}

	// The client delivers events to the agent and the agent reads the
	// membership view from the client; the forwarder breaks the cycle.
	forwarder := &eventForwarder{}
	client := gateway.NewClient(gateway.Config{
		URL:            cfg.Gateway.URL,
		Token:          cfg.Gateway.Token,
		Heartbeat:      cfg.Gateway.Heartbeat,
		RequestTimeout: cfg.Gateway.RequestTimeout,
	}, forwarder)
	a := agent.New(cfg.Agent.SelfID, manager, announcer, client)
	forwarder.agent = a
	a.Start(ctx)

	err = client.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Stop(shutdownCtx)
	if exporter != nil {
		if shutdownErr := exporter.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("metrics exporter shutdown failed", "error", shutdownErr)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("bellhop stopped")
	return nil
}

// eventForwarder relays platform events to the agent. The agent field is
// assigned before the client starts delivering events.
type eventForwarder struct {
	agent *agent.Agent
}

func (f *eventForwarder) HandleMembershipChange(change *platform.MembershipChange) {
	f.agent.HandleMembershipChange(change)
}

func (f *eventForwarder) HandleReady(communities []platform.Community) {
	f.agent.HandleReady(communities)
}

// newAnnouncer assembles the synthesis pipeline. When every configured
// provider fails to initialize, notifications stay disabled for the rest of
// the process while channel presence continues; the agent runs with a nil
// announcer. Configuration problems remain hard errors.
func newAnnouncer(ctx context.Context, cfg *config.Config, manager *connection.Manager) (*notify.Announcer, func(), error) {
	factory := newFactory(cfg.TTS)
	if err := factory.Initialize(ctx, nil); err != nil {
		if !errors.Is(err, tts.ErrNoProviders) {
			return nil, func() {}, fmt.Errorf("initialize synthesis providers: %w", err)
		}
		logger.Warn("all synthesis providers failed to initialize, notifications disabled")
		return nil, func() {}, nil
	}

	store, err := newSpeechStore(ctx, cfg.Cache)
	if err != nil {
		factory.Cleanup()
		return nil, func() {}, err
	}

	params := tts.Params{
		Voice:    cfg.TTS.Voice,
		Language: cfg.TTS.Language,
		Speed:    cfg.TTS.Speed,
		Model:    cfg.TTS.Model,
	}
	if cfg.TTS.ParamsFile != "" {
		if params, err = tts.LoadParams(cfg.TTS.ParamsFile); err != nil {
			factory.Cleanup()
			store.Close()
			return nil, func() {}, err
		}
	}

	synth := notify.NewSynthesizer(factory, store, newTranscoder(cfg.TTS), params)
	announcer := notify.NewAnnouncer(notify.AnnouncerConfig{
		Workers:     cfg.Announce.Workers,
		QueueSize:   cfg.Announce.QueueSize,
		MinInterval: cfg.Announce.MinInterval,
		Burst:       cfg.Announce.Burst,
		Templates:   templates(cfg.Announce),
	}, synth, notify.NewPlayer(manager))
	cleanup := func() {
		factory.Cleanup()
		store.Close()
	}
	return announcer, cleanup, nil
}

// newFactory registers the configured providers in fallback order.
func newFactory(cfg config.TTS) *tts.Factory {
	factory := tts.NewFactory()
	for _, p := range cfg.Providers {
		p := p
		switch p.Kind {
		case "http":
			factory.Register(p.Name, func(map[string]string) (tts.Provider, error) {
				var opts []tts.HTTPOption
				if p.APIKey != "" {
					opts = append(opts, tts.WithAPIKey(p.APIKey))
				}
				return tts.NewHTTPProvider(p.Name, p.Endpoint, opts...), nil
			})
		case "piper":
			factory.Register(p.Name, func(map[string]string) (tts.Provider, error) {
				var opts []tts.PiperOption
				if p.Binary != "" {
					opts = append(opts, tts.WithPiperBinary(p.Binary))
				}
				return tts.NewPiperProvider(p.Model, opts...), nil
			})
		}
	}
	return factory
}

// newTranscoder returns nil when ffmpeg is unavailable; synthesized audio is
// then cached in its raw format.
func newTranscoder(cfg config.TTS) *tts.Transcoder {
	if err := tts.CheckFFmpegAvailable(cfg.FFmpegPath); err != nil {
		logger.Warn("ffmpeg unavailable, caching raw synthesis output", "error", err)
		return nil
	}
	var opts []tts.TranscoderOption
	if cfg.FFmpegPath != "" {
		opts = append(opts, tts.WithFFmpegPath(cfg.FFmpegPath))
	}
	if cfg.BitRate != "" {
		opts = append(opts, tts.WithBitRate(cfg.BitRate))
	}
	return tts.NewTranscoder(opts...)
}

// newSpeechStore opens the artifact store and rehydrates surviving entries.
func newSpeechStore(ctx context.Context, cfg config.Cache) (*speechcache.Store, error) {
	opts := []speechcache.StoreOption{speechcache.WithMaxEntries(cfg.MaxEntries)}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		var indexOpts []speechcache.RedisIndexOption
		if cfg.Redis.Prefix != "" {
			indexOpts = append(indexOpts, speechcache.WithRedisPrefix(cfg.Redis.Prefix))
		}
		opts = append(opts, speechcache.WithIndex(speechcache.NewRedisIndex(client, indexOpts...)))
	}

	store, err := speechcache.NewStore(cfg.Dir, opts...)
	if err != nil {
		return nil, fmt.Errorf("open speech cache: %w", err)
	}
	restored, err := store.Rehydrate(ctx)
	if err != nil {
		logger.Warn("speech cache rehydration failed", "error", err)
	} else if restored > 0 {
		logger.Info("speech cache rehydrated", "entries", restored)
	}
	return store, nil
}

// templates merges configured announcement texts over the defaults.
func templates(cfg config.Announce) notify.Templates {
	t := notify.DefaultTemplates()
	if cfg.JoinTemplate != "" {
		t.Join = cfg.JoinTemplate
	}
	if cfg.LeaveTemplate != "" {
		t.Leave = cfg.LeaveTemplate
	}
	if cfg.MoveTemplate != "" {
		t.Move = cfg.MoveTemplate
	}
	return t
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
