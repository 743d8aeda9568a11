package discord

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/louisbranch/gamewatch/internal/platform/timeouts"
	"github.com/louisbranch/gamewatch/internal/services/tracker/domain"
	"github.com/louisbranch/gamewatch/internal/services/tracker/settings"
	"github.com/louisbranch/gamewatch/internal/services/tracker/storage"
)

const (
	searchLimit = 10
	listLimit   = 20
)

// Commands implements the tracker slash commands: sighting search for
// everyone, ban and settings management for owners and administrators.
type Commands struct {
	store    storage.Store
	settings *settings.Store
	clock    func() time.Time
}

// NewCommands wires the slash command handlers.
func NewCommands(store storage.Store, settingsStore *settings.Store) *Commands {
	return &Commands{store: store, settings: settingsStore, clock: time.Now}
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	minTTL := float64(30)
	return []*discordgo.ApplicationCommand{
		{
			Name:        "find_player",
			Description: "Search recent sightings of a player",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Player name", Required: true},
			},
		},
		{
			Name:        "find_game",
			Description: "Search recent sightings in a game",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Game name", Required: true},
			},
		},
		{
			Name:        "game_stats",
			Description: "Show session statistics for a game type",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "type", Description: "Game type code", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "version", Description: "Game version", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "days", Description: "Window in days (default 30)"},
			},
		},
		{
			Name:        "list_members",
			Description: "List recently seen network members",
		},
		{
			Name:        "member",
			Description: "Show one network member",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "Member ID", Required: true},
			},
		},
		{
			Name:        "list_bans",
			Description: "List active address bans",
		},
		{
			Name:        "ban",
			Description: "Ban a network address",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "address", Description: "IP address", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "days", Description: "Ban length in days (default 30)"},
			},
		},
		{
			Name:        "unban",
			Description: "Remove an address ban",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "address", Description: "IP address", Required: true},
			},
		},
		{
			Name:        "set_ttl",
			Description: "Set how long a session survives without a sighting",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "seconds", Description: "TTL in seconds", Required: true, MinValue: &minTTL},
			},
		},
		{
			Name:        "set_refresh",
			Description: "Set the snapshot refresh interval",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "seconds", Description: "Interval in seconds", Required: true, MinValue: &minTTL},
			},
		},
		{
			Name:        "set_game_type",
			Description: "Set the display label for a game type code",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "code", Description: "Game type code", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "label", Description: "Display label", Required: true},
			},
		},
		{
			Name:        "set_tick_rate",
			Description: "Set the display label for a tick rate",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "rate", Description: "Tick rate", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "label", Description: "Display label (empty hides it)", Required: true},
			},
		},
		{
			Name:        "set_difficulty",
			Description: "Set the display label for a difficulty level",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "level", Description: "Difficulty level", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "label", Description: "Display label", Required: true},
			},
		},
		{
			Name:        "set_game_option",
			Description: "Set the display label for a game option flag",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "key", Description: "Option key", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "label", Description: "Display label", Required: true},
			},
		},
		{
			Name:        "add_owner",
			Description: "Grant a user bot owner rights",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to add", Required: true},
			},
		},
		{
			Name:        "remove_owner",
			Description: "Revoke a user's bot owner rights",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to remove", Required: true},
			},
		},
	}
}

// Register overwrites the guild's command set and installs the interaction
// handler. The session must already be open so the application ID is known.
func (c *Commands) Register(session *discordgo.Session, guildID string) error {
	if session.State.User == nil {
		return fmt.Errorf("discord session has no application user")
	}
	if _, err := session.ApplicationCommandBulkOverwrite(session.State.User.ID, guildID, commandDefinitions()); err != nil {
		return fmt.Errorf("overwrite application commands: %w", err)
	}
	session.AddHandler(c.handleInteraction)
	return nil
}

func (c *Commands) handleInteraction(session *discordgo.Session, event *discordgo.InteractionCreate) {
	if event.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.HTTPRequest)
	defer cancel()

	data := event.ApplicationCommandData()
	options := indexOptions(data.Options)

	var reply string
	var err error
	switch data.Name {
	case "find_player":
		reply, err = c.findPlayer(ctx, options.str("name"))
	case "find_game":
		reply, err = c.findGame(ctx, options.str("name"))
	case "game_stats":
		reply, err = c.gameStats(ctx, options.str("type"), options.str("version"), options.intOr("days", 30))
	case "list_members":
		reply, err = c.listMembers(ctx)
	case "member":
		reply, err = c.showMember(ctx, options.str("id"))
	case "list_bans":
		reply, err = c.listBans(ctx)
	case "ban":
		reply, err = c.gated(event, func() (string, error) {
			return c.ban(ctx, options.str("address"), options.intOr("days", 30))
		})
	case "unban":
		reply, err = c.gated(event, func() (string, error) {
			return c.unban(ctx, options.str("address"))
		})
	case "set_ttl":
		reply, err = c.gated(event, func() (string, error) {
			return c.setDuration("TTL", options.intOr("seconds", 0), func(s *domain.Settings, d time.Duration) { s.TTL = d })
		})
	case "set_refresh":
		reply, err = c.gated(event, func() (string, error) {
			return c.setDuration("refresh interval", options.intOr("seconds", 0), func(s *domain.Settings, d time.Duration) { s.Refresh = d })
		})
	case "set_game_type":
		reply, err = c.gated(event, func() (string, error) {
			return c.setLabel(func(s *domain.Settings) { s.Tables.Kinds[strings.ToUpper(options.str("code"))] = options.str("label") },
				"game type %s is now %q", strings.ToUpper(options.str("code")), options.str("label"))
		})
	case "set_tick_rate":
		reply, err = c.gated(event, func() (string, error) {
			rate := int(options.intOr("rate", 0))
			return c.setLabel(func(s *domain.Settings) { s.Tables.TickRates[rate] = options.str("label") },
				"tick rate %d is now %q", rate, options.str("label"))
		})
	case "set_difficulty":
		reply, err = c.gated(event, func() (string, error) {
			level := int(options.intOr("level", 0))
			return c.setLabel(func(s *domain.Settings) { s.Tables.Difficulties[level] = options.str("label") },
				"difficulty %d is now %q", level, options.str("label"))
		})
	case "set_game_option":
		reply, err = c.gated(event, func() (string, error) {
			return c.setLabel(func(s *domain.Settings) { s.Tables.Options[options.str("key")] = options.str("label") },
				"option %s is now %q", options.str("key"), options.str("label"))
		})
	case "add_owner":
		reply, err = c.gated(event, func() (string, error) {
			return c.changeOwner(options.user(data, "user"), true)
		})
	case "remove_owner":
		reply, err = c.gated(event, func() (string, error) {
			return c.changeOwner(options.user(data, "user"), false)
		})
	default:
		return
	}

	if err != nil {
		log.Printf("command %s: %v", data.Name, err)
		reply = "Something went wrong, try again later."
	}
	respond(session, event, reply)
}

// gated runs fn only for bot owners and guild administrators.
func (c *Commands) gated(event *discordgo.InteractionCreate, fn func() (string, error)) (string, error) {
	if !c.authorized(event) {
		return "You are not allowed to use this command.", nil
	}
	return fn()
}

func (c *Commands) authorized(event *discordgo.InteractionCreate) bool {
	if event.Member != nil {
		if event.Member.Permissions&discordgo.PermissionAdministrator != 0 {
			return true
		}
		return c.settings.Current().IsOwner(event.Member.User.ID)
	}
	if event.User != nil {
		return c.settings.Current().IsOwner(event.User.ID)
	}
	return false
}

func (c *Commands) findPlayer(ctx context.Context, name string) (string, error) {
	sightings, err := c.store.FindPlayerSightings(ctx, name, searchLimit)
	if err != nil {
		return "", fmt.Errorf("find player sightings: %w", err)
	}
	if len(sightings) == 0 {
		return fmt.Sprintf("No sightings of **%s**.", domain.EscapeFormatting(name)), nil
	}
	return formatSightings(sightings), nil
}

func (c *Commands) findGame(ctx context.Context, name string) (string, error) {
	sightings, err := c.store.FindGameSightings(ctx, name, searchLimit)
	if err != nil {
		return "", fmt.Errorf("find game sightings: %w", err)
	}
	if len(sightings) == 0 {
		return fmt.Sprintf("No sightings in game **%s**.", domain.EscapeFormatting(name)), nil
	}
	return formatSightings(sightings), nil
}

func formatSightings(sightings []storage.Sighting) string {
	var b strings.Builder
	for _, s := range sightings {
		switch {
		case s.Game != "":
			fmt.Fprintf(&b, "**%s** in game **%s** <t:%d:R>\n",
				domain.EscapeFormatting(s.Player), domain.EscapeFormatting(s.Game), s.At.Unix())
		case s.MemberID != "":
			fmt.Fprintf(&b, "**%s** on the network as member `%s` <t:%d:R>\n",
				domain.EscapeFormatting(s.Player), s.MemberID, s.At.Unix())
		default:
			fmt.Fprintf(&b, "**%s** <t:%d:R>\n", domain.EscapeFormatting(s.Player), s.At.Unix())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) gameStats(ctx context.Context, kind, version string, days int64) (string, error) {
	since := c.clock().AddDate(0, 0, -int(days))
	stats, err := c.store.GameStats(ctx, strings.ToUpper(kind), version, since)
	if err != nil {
		return "", fmt.Errorf("game stats: %w", err)
	}
	if stats.GamesPlayed == 0 {
		return "No sessions recorded in that window.", nil
	}
	minutes := int(stats.TotalPlaytime.Round(time.Minute).Minutes())
	return fmt.Sprintf("**%d** sessions, **%d** unique players, total playtime `%s`.",
		stats.GamesPlayed, stats.UniquePlayers, domain.FormatMinutes(minutes)), nil
}

func (c *Commands) listMembers(ctx context.Context) (string, error) {
	members, err := c.store.ListMembers(ctx, listLimit)
	if err != nil {
		return "", fmt.Errorf("list members: %w", err)
	}
	if len(members) == 0 {
		return "No members recorded.", nil
	}
	var b strings.Builder
	for _, m := range members {
		fmt.Fprintf(&b, "%s\n", formatMember(m))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (c *Commands) showMember(ctx context.Context, id string) (string, error) {
	member, found, err := c.store.GetMember(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get member: %w", err)
	}
	if !found {
		return fmt.Sprintf("No member `%s` recorded.", id), nil
	}
	return formatMember(member), nil
}

func formatMember(m storage.Member) string {
	line := fmt.Sprintf("`%s` from `%s`, last seen <t:%d:R>", m.ID, m.PhysicalAddress, m.LastSeen.Unix())
	if m.Status != "" {
		line += fmt.Sprintf(" (%s)", m.Status)
	}
	return line
}

func (c *Commands) listBans(ctx context.Context) (string, error) {
	bans, err := c.store.ListBans(ctx, listLimit)
	if err != nil {
		return "", fmt.Errorf("list bans: %w", err)
	}
	if len(bans) == 0 {
		return "No active bans.", nil
	}
	var b strings.Builder
	for _, ban := range bans {
		fmt.Fprintf(&b, "`%s` until <t:%d:R>\n", ban.Address, ban.Expiration.Unix())
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (c *Commands) ban(ctx context.Context, address string, days int64) (string, error) {
	expiration := c.clock().AddDate(0, 0, int(days))
	if err := c.store.SaveBan(ctx, address, expiration); err != nil {
		return "", fmt.Errorf("save ban: %w", err)
	}
	return fmt.Sprintf("Banned `%s` until <t:%d:R>.", address, expiration.Unix()), nil
}

func (c *Commands) unban(ctx context.Context, address string) (string, error) {
	if err := c.store.RemoveBan(ctx, address); err != nil {
		return "", fmt.Errorf("remove ban: %w", err)
	}
	return fmt.Sprintf("Removed ban on `%s`.", address), nil
}

func (c *Commands) setDuration(name string, seconds int64, apply func(*domain.Settings, time.Duration)) (string, error) {
	if seconds <= 0 {
		return "Value must be positive.", nil
	}
	d := time.Duration(seconds) * time.Second
	if err := c.settings.Update(func(s *domain.Settings) { apply(s, d) }); err != nil {
		return "", fmt.Errorf("update settings: %w", err)
	}
	return fmt.Sprintf("Set %s to %s.", name, d), nil
}

func (c *Commands) setLabel(apply func(*domain.Settings), format string, args ...any) (string, error) {
	if err := c.settings.Update(apply); err != nil {
		return "", fmt.Errorf("update settings: %w", err)
	}
	return fmt.Sprintf("Set "+format+".", args...), nil
}

func (c *Commands) changeOwner(userID string, add bool) (string, error) {
	if userID == "" {
		return "Unknown user.", nil
	}
	err := c.settings.Update(func(s *domain.Settings) {
		owners := make([]string, 0, len(s.Owners)+1)
		for _, owner := range s.Owners {
			if owner != userID {
				owners = append(owners, owner)
			}
		}
		if add {
			owners = append(owners, userID)
		}
		s.Owners = owners
	})
	if err != nil {
		return "", fmt.Errorf("update settings: %w", err)
	}
	if add {
		return fmt.Sprintf("<@%s> is now a bot owner.", userID), nil
	}
	return fmt.Sprintf("<@%s> is no longer a bot owner.", userID), nil
}

type optionIndex map[string]*discordgo.ApplicationCommandInteractionDataOption

func indexOptions(options []*discordgo.ApplicationCommandInteractionDataOption) optionIndex {
	index := make(optionIndex, len(options))
	for _, option := range options {
		index[option.Name] = option
	}
	return index
}

func (o optionIndex) str(name string) string {
	if option, ok := o[name]; ok {
		return option.StringValue()
	}
	return ""
}

func (o optionIndex) intOr(name string, fallback int64) int64 {
	if option, ok := o[name]; ok {
		return option.IntValue()
	}
	return fallback
}

func (o optionIndex) user(data discordgo.ApplicationCommandInteractionData, name string) string {
	option, ok := o[name]
	if !ok {
		return ""
	}
	id, _ := option.Value.(string)
	if data.Resolved != nil {
		if user, ok := data.Resolved.Users[id]; ok {
			return user.ID
		}
	}
	return id
}

func respond(session *discordgo.Session, event *discordgo.InteractionCreate, content string) {
	err := session.InteractionRespond(event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("respond to interaction: %v", err)
	}
}
