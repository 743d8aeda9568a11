// Package tracker parses tracker command flags and launches the tracker
// runtime.
package tracker

import (
	"context"
	"flag"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/gamewatch/internal/platform/cmd"
	trackerserver "github.com/louisbranch/gamewatch/internal/services/tracker/app"
)

// Config holds tracker command configuration.
type Config struct {
	Port            int           `env:"GAMEWATCH_TRACKER_PORT" envDefault:"8094"`
	Token           string        `env:"GAMEWATCH_DISCORD_TOKEN"`
	ChannelID       string        `env:"GAMEWATCH_DISCORD_CHANNEL"`
	GuildID         string        `env:"GAMEWATCH_DISCORD_GUILD"`
	Command         string        `env:"GAMEWATCH_SNAPSHOT_COMMAND"`
	CommandArgs     string        `env:"GAMEWATCH_SNAPSHOT_ARGS"`
	DBPath          string        `env:"GAMEWATCH_TRACKER_DB_PATH" envDefault:"data/tracker.db"`
	BanlistPath     string        `env:"GAMEWATCH_BANLIST_PATH"`
	SettingsPath    string        `env:"GAMEWATCH_SETTINGS_PATH"`
	FetchTimeout    time.Duration `env:"GAMEWATCH_FETCH_TIMEOUT" envDefault:"30s"`
	EmptyRetries    int           `env:"GAMEWATCH_EMPTY_RETRIES" envDefault:"3"`
	EmptyRetryDelay time.Duration `env:"GAMEWATCH_EMPTY_RETRY_DELAY" envDefault:"5s"`
	ZTToken         string        `env:"GAMEWATCH_ZT_TOKEN"`
	ZTNetworkID     string        `env:"GAMEWATCH_ZT_NETWORK"`
	MaintenanceSpec string        `env:"GAMEWATCH_MAINTENANCE_SPEC" envDefault:"@every 1h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The tracker health gRPC server port")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "The Discord bot token")
	fs.StringVar(&cfg.ChannelID, "channel", cfg.ChannelID, "The Discord channel for session messages")
	fs.StringVar(&cfg.GuildID, "guild", cfg.GuildID, "The Discord guild for slash commands")
	fs.StringVar(&cfg.Command, "snapshot-command", cfg.Command, "The game discovery command")
	fs.StringVar(&cfg.CommandArgs, "snapshot-args", cfg.CommandArgs, "Space-separated discovery command arguments")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The tracker SQLite database path")
	fs.StringVar(&cfg.BanlistPath, "banlist", cfg.BanlistPath, "The banned word list path")
	fs.StringVar(&cfg.SettingsPath, "settings", cfg.SettingsPath, "The runtime settings file path")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", cfg.FetchTimeout, "Snapshot command timeout")
	fs.IntVar(&cfg.EmptyRetries, "empty-retries", cfg.EmptyRetries, "Re-fetch attempts before trusting an empty snapshot")
	fs.DurationVar(&cfg.EmptyRetryDelay, "empty-retry-delay", cfg.EmptyRetryDelay, "Delay between empty snapshot re-fetches")
	fs.StringVar(&cfg.ZTToken, "zt-token", cfg.ZTToken, "ZeroTier Central API token")
	fs.StringVar(&cfg.ZTNetworkID, "zt-network", cfg.ZTNetworkID, "ZeroTier network ID")
	fs.StringVar(&cfg.MaintenanceSpec, "maintenance-spec", cfg.MaintenanceSpec, "Cron spec for the maintenance job")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the tracker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTracker, func(context.Context) error {
		return trackerserver.Run(ctx, trackerserver.RuntimeConfig{
			Port:            cfg.Port,
			Token:           cfg.Token,
			ChannelID:       cfg.ChannelID,
			GuildID:         cfg.GuildID,
			Command:         cfg.Command,
			CommandArgs:     strings.Fields(cfg.CommandArgs),
			DBPath:          cfg.DBPath,
			BanlistPath:     cfg.BanlistPath,
			SettingsPath:    cfg.SettingsPath,
			FetchTimeout:    cfg.FetchTimeout,
			EmptyRetries:    cfg.EmptyRetries,
			EmptyRetryDelay: cfg.EmptyRetryDelay,
			ZTToken:         cfg.ZTToken,
			ZTNetworkID:     cfg.ZTNetworkID,
			MaintenanceSpec: cfg.MaintenanceSpec,
		})
	})
}
