package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/fedihype/fedihype/internal/config"
	"github.com/fedihype/fedihype/internal/engine"
	"github.com/fedihype/fedihype/internal/history"
	"github.com/fedihype/fedihype/internal/metrics"
	"github.com/fedihype/fedihype/internal/scheduler"
	"github.com/fedihype/fedihype/pkg/mastodon"
	"github.com/fedihype/fedihype/pkg/publisher"
	"github.com/fedihype/fedihype/pkg/server"
	"github.com/fedihype/fedihype/pkg/source"
)

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if cfg.Log.DebugDecisions && level > logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	return log
}

func buildOrigins(cfg *config.Config, bot *mastodon.Client) []source.Origin {
	var origins []source.Origin

	for _, inst := range cfg.Instances {
		origins = append(origins, source.NewTrending(inst.Name, inst.FetchLimit, inst.BoostLimit))
	}
	if cfg.LocalTimeline.Enabled && bot != nil {
		origins = append(origins, source.NewLocal(bot,
			cfg.LocalTimeline.FetchLimit,
			cfg.LocalTimeline.BoostLimit,
			cfg.LocalTimeline.MinEngagement,
		))
	}
	for _, feed := range cfg.Feeds {
		origins = append(origins, source.NewFeed(feed.Name, feed.URL, feed.BoostLimit))
	}

	return origins
}

type bot struct {
	cfg    *config.Config
	log    *logrus.Logger
	hist   *history.Store
	engine *engine.Engine
	reg    *prometheus.Registry
}

func buildBot(cfg *config.Config) (*bot, error) {
	log := buildLogger(cfg)

	if cfg.Bot.Server == "" || cfg.Bot.AccessToken == "" {
		return nil, fmt.Errorf("bot.server and bot.access_token must be configured")
	}
	client := mastodon.NewClient(cfg.Bot.Server, cfg.Bot.AccessToken)

	origins := buildOrigins(cfg, client)
	if len(origins) == 0 {
		return nil, fmt.Errorf("no origins configured: add instances, feeds, or enable the local timeline")
	}
	originLimits := make(map[string]int, len(origins))
	for _, origin := range origins {
		originLimits[origin.Name()] = origin.BoostLimit()
	}

	hist := history.Open(cfg.State.Path, cfg.State.SeenCacheSize, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	met := metrics.New(reg)

	pub := publisher.NewMastodon(client, cfg.Bot.FederateMissing, log)
	scorer := engine.NewScorer(cfg.Scoring)
	ctrl := engine.NewController(cfg.Admission, cfg.Scoring.MinScoreThreshold, originLimits, pub, log)
	eng := engine.New(origins, scorer, ctrl, hist, met, log)

	return &bot{cfg: cfg, log: log, hist: hist, engine: eng, reg: reg}, nil
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	b, err := buildBot(cfg)
	if err != nil {
		return err
	}
	defer b.hist.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(b.engine, cfg.Schedule.ParseInterval(), b.log)
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			b.log.WithError(err).Error("scheduler stopped")
		}
	}()

	srv := server.New(b.engine, b.hist, b.reg, port, b.log)
	go func() {
		<-ctx.Done()
		b.log.Info("shutting down")
	}()

	return srv.ListenAndServe()
}

func runBoost() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	b, err := buildBot(cfg)
	if err != nil {
		return err
	}
	defer b.hist.Close()

	res, err := b.engine.RunCycle(context.Background())
	if err != nil {
		return fmt.Errorf("boost cycle: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORIGIN\tSCORE\tAUTHOR\tURL")
	for _, cand := range res.Admitted {
		fmt.Fprintf(w, "%s\t%.1f\t%s\t%s\n",
			cand.Origin, cand.Score, cand.Status.Account.Acct, cand.Status.CanonicalURL())
	}
	return w.Flush()
}

func runProfile() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Bot.Server == "" || cfg.Bot.AccessToken == "" {
		return fmt.Errorf("bot.server and bot.access_token must be configured")
	}

	var lines []string
	for _, inst := range cfg.Instances {
		lines = append(lines, "- "+inst.Name)
	}
	note := cfg.Profile.Prefix + "\n" + strings.Join(lines, "\n") + "\n"

	client := mastodon.NewClient(cfg.Bot.Server, cfg.Bot.AccessToken)
	if err := client.UpdateCredentials(context.Background(), note, cfg.Profile.Fields); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	fmt.Println("profile updated")
	return nil
}

func runState() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := buildLogger(cfg)
	hist := history.Open(cfg.State.Path, cfg.State.SeenCacheSize, log)
	defer hist.Close()

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "seen statuses\t%d\n", hist.SeenCount())
	fmt.Fprintf(w, "boosts this hour\t%d / %d\n", hist.HourCount(now), cfg.Admission.HourlyCap)
	fmt.Fprintf(w, "boosts today\t%d / %d\n", hist.DayCount(now), cfg.Admission.DailyCap)
	return w.Flush()
}
