package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/gamewatch/internal/platform/timeouts"
	"github.com/louisbranch/gamewatch/internal/services/tracker/discord"
	"github.com/louisbranch/gamewatch/internal/services/tracker/settings"
	trackersqlite "github.com/louisbranch/gamewatch/internal/services/tracker/storage/sqlite"
	"github.com/louisbranch/gamewatch/internal/services/tracker/ztcentral"
)

// RuntimeConfig controls tracker startup, dependencies, and cycle behavior.
type RuntimeConfig struct {
	Port            int
	Token           string
	ChannelID       string
	GuildID         string
	Command         string
	CommandArgs     []string
	DBPath          string
	BanlistPath     string
	SettingsPath    string
	FetchTimeout    time.Duration
	EmptyRetries    int
	EmptyRetryDelay time.Duration
	ZTToken         string
	ZTNetworkID     string
	MaintenanceSpec string
}

const (
	defaultTrackerPort     = 8094
	defaultTrackerDB       = "data/tracker.db"
	defaultMaintenanceSpec = "@every 1h"
)

// Run starts tracker runtime dependencies and the snapshot cycle loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return fmt.Errorf("discord token is required")
	}
	if strings.TrimSpace(cfg.ChannelID) == "" {
		return fmt.Errorf("discord channel is required")
	}
	if strings.TrimSpace(cfg.Command) == "" {
		return fmt.Errorf("snapshot command is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultTrackerPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultTrackerDB
	}
	if strings.TrimSpace(cfg.MaintenanceSpec) == "" {
		cfg.MaintenanceSpec = defaultMaintenanceSpec
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create tracker storage dir: %w", err)
		}
	}

	trackerStore, err := trackersqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open tracker sqlite store: %w", err)
	}
	defer func() {
		if closeErr := trackerStore.Close(); closeErr != nil {
			log.Printf("close tracker sqlite store: %v", closeErr)
		}
	}()

	settingsStore, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		return fmt.Errorf("load tracker settings: %w", err)
	}

	banlist, err := NewBanlistWatcher(cfg.BanlistPath)
	if err != nil {
		return fmt.Errorf("watch banlist: %w", err)
	}
	defer func() {
		if closeErr := banlist.Close(); closeErr != nil {
			log.Printf("close banlist watcher: %v", closeErr)
		}
	}()
	go banlist.Run(ctx)

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	sink := discord.NewSink(session, cfg.ChannelID)
	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			log.Printf("close discord session: %v", closeErr)
		}
	}()

	// A misconfigured channel means every slot write would fail. Fail fast.
	if _, err := session.Channel(cfg.ChannelID); err != nil {
		return fmt.Errorf("resolve discord channel %s: %w", cfg.ChannelID, err)
	}

	commands := discord.NewCommands(trackerStore, settingsStore)
	if err := commands.Register(session, cfg.GuildID); err != nil {
		log.Printf("register discord commands: %v", err)
	}

	var ztClient *ztcentral.Client
	if strings.TrimSpace(cfg.ZTToken) != "" && strings.TrimSpace(cfg.ZTNetworkID) != "" {
		ztClient = ztcentral.NewClient(cfg.ZTToken)
	}

	maintenance := NewMaintenance(trackerStore, ztClient, cfg.ZTNetworkID)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.MaintenanceSpec, func() {
		maintenance.Run(ctx)
	}); err != nil {
		return fmt.Errorf("schedule maintenance %q: %w", cfg.MaintenanceSpec, err)
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	source := &SubprocessSource{
		Command: cfg.Command,
		Args:    cfg.CommandArgs,
		Timeout: cfg.FetchTimeout,
	}
	loopConfig := Config{
		FetchTimeout:    cfg.FetchTimeout,
		EmptyRetries:    cfg.EmptyRetries,
		EmptyRetryDelay: cfg.EmptyRetryDelay,
	}
	trackerLoop := NewLoop(loopConfig, source, sink, settingsStore, banlist, trackerStore, sink)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on tracker port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("tracker.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(timeouts.Shutdown):
			grpcServer.Stop()
		}
		<-serveErr
	}()

	log.Printf("tracker server listening at %v", listener.Addr())
	return trackerLoop.Run(ctx)
}
