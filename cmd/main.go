package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/internal/commands"
	"github.com/latoulicious/cozycat/internal/config"
	"github.com/latoulicious/cozycat/internal/handlers"
	"github.com/latoulicious/cozycat/internal/metrics"
	"github.com/latoulicious/cozycat/internal/presence"
	"github.com/latoulicious/cozycat/pkg/acquire"
	"github.com/latoulicious/cozycat/pkg/cron"
	"github.com/latoulicious/cozycat/pkg/database"
	"github.com/latoulicious/cozycat/pkg/extractor"
	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/latoulicious/cozycat/pkg/player"
	"github.com/latoulicious/cozycat/pkg/resolver"
	"github.com/latoulicious/cozycat/pkg/session"
)

const (
	presenceInterval = 5 * time.Minute
	jobTimeout       = time.Minute
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		pipeline.DefaultLogger().Fatal("Failed to load config", pipeline.Error(err))
	}

	logger := pipeline.NewStructuredLogger(cfg.Logging)
	pipeline.NewStdLogAdapter(logger).SetAsStdLogger()
	collector := pipeline.NewPrometheusCollector("cozycat", logger)

	innertube, err := extractor.NewInnertube(extractor.InnertubeConfig{
		Cookie: cfg.YouTubeCookie,
		Proxy:  cfg.YouTubeProxy,
		RPS:    cfg.ExtractorRPS,
		Burst:  cfg.ExtractorBurst,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create innertube client", pipeline.Error(err))
	}
	ytdlp := extractor.NewYtDlp(extractor.YtDlpConfig{Cookie: cfg.YouTubeCookie, Proxy: cfg.YouTubeProxy}, logger)
	page := extractor.NewPageMeta(cfg.YouTubeCookie, logger)
	transcoder := pipeline.NewTranscoder(&cfg.Pipeline, logger)

	sources := resolver.Sources{
		Providers: []extractor.InfoProvider{innertube, ytdlp, page},
		Searcher:  ytdlp,
		Playlists: innertube,
	}
	if cfg.SpotifyEnabled() {
		sources.Catalog = extractor.NewSpotify(cfg.SpotifyClientID, cfg.SpotifyClientSecret, logger)
	}
	res := resolver.New(resolver.Config{
		PlaylistMax:      cfg.PlaylistMax,
		SearchCandidates: cfg.SearchCandidates,
	}, sources, logger, collector)
	acq := acquire.New(acquire.Config{FirstByteTimeout: cfg.Pipeline.FirstByteTimeout},
		acquire.DefaultStrategies(innertube, ytdlp, transcoder), ytdlp, logger, collector)

	var (
		history *database.HistoryRepository
		jobs    *cron.JobManager
	)
	if cfg.History.Enabled() {
		history, err = database.OpenHistory(context.Background(), &cfg.History)
		if err != nil {
			logger.Fatal("Failed to open history database", pipeline.Error(err))
		}
		jobs = cron.NewJobManager(jobTimeout, logger, collector)
		if err := jobs.Schedule("history_retention", cfg.History.CleanupSchedule,
			cron.RetentionJob(history, history.Retention(), logger)); err != nil {
			logger.Fatal("Failed to schedule retention job", pipeline.Error(err))
		}
		jobs.Start()
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Fatal("Failed to create Discord session", pipeline.Error(err))
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	presenceManager := presence.NewPresenceManager(dg, logger)
	deps := player.Deps{
		Acquirer: acq,
		Fetcher:  res,
		Notifier: player.MultiNotifier{presenceManager, commands.NewChannelNotifier(dg, logger)},
		Logger:   logger,
		Metrics:  collector,
	}
	var recent commands.History
	if history != nil {
		deps.Recorder = history
		recent = history
	}
	players := player.NewManager(session.NewRegistry(),
		player.PipelineDevices(&cfg.Pipeline, transcoder, logger, collector), deps)

	router := commands.NewRouter(players, res, handlers.NewVoiceJoiner(dg, logger), recent, logger, collector)
	dg.AddHandler(handlers.NewSlashCommandHandler(router, logger).Handle)

	if err := dg.Open(); err != nil {
		logger.Fatal("Failed to open Discord session", pipeline.Error(err))
	}
	if err := commands.RegisterSlashCommands(dg, dg.State.User.ID, cfg.GuildID, logger); err != nil {
		logger.Fatal("Failed to register slash commands", pipeline.Error(err))
	}

	stopPresence := make(chan struct{})
	presenceManager.UpdateDefaultPresence()
	presenceManager.StartPeriodicUpdates(presenceInterval, stopPresence)

	var metricsServer *metrics.Server
	if cfg.MetricsAddr != "" {
		checks := map[string]metrics.HealthCheck{}
		if history != nil {
			checks["history"] = history.Ping
		}
		gauges := func() {
			collector.RecordGauge("sessions", float64(players.Registry().Len()), nil)
		}
		metricsServer = metrics.NewServer(cfg.MetricsAddr, metrics.NewRouter(collector.Registry(), gauges, checks), logger)
		metricsServer.Start()
	}

	logger.Info("Bot is running. Press CTRL-C to exit.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info("Shutting down")
	close(stopPresence)
	players.Shutdown()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(); err != nil {
			logger.Warn("Metrics server shutdown failed", pipeline.Error(err))
		}
	}
	if jobs != nil {
		jobs.Stop()
	}
	if history != nil {
		if err := history.Close(); err != nil {
			logger.Warn("Failed to close history database", pipeline.Error(err))
		}
	}
	if err := dg.Close(); err != nil {
		logger.Warn("Failed to close Discord session", pipeline.Error(err))
	}
}
