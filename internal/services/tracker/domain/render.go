package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Tables hold the categorical display lookup tables. They are read-only to
// the render path and mutated only through admin commands.
type Tables struct {
	Kinds        map[string]string
	TickRates    map[int]string
	Difficulties map[int]string
	Options      map[string]string
}

// Flag option keys used in the Options table.
const (
	OptionRunInTown    = "run_in_town"
	OptionFullQuests   = "full_quests"
	OptionTheoQuest    = "theo_quest"
	OptionCowQuest     = "cow_quest"
	OptionFriendlyFire = "friendly_fire"
)

// DefaultTables returns the built-in lookup tables for the stock game kinds,
// tick rates, and difficulties.
func DefaultTables() Tables {
	return Tables{
		Kinds: map[string]string{
			"DRTL": "<:diabloico:760201452957335552>",
			"DSHR": "<:diabloico:760201452957335552> (spawn)",
			"HRTL": "<:hellfire:766901810580815932>",
			"HSHR": "<:hellfire:766901810580815932> (spawn)",
			"IRON": "Ironman",
			"MEMD": "<:one_ring:1061898681504251954>",
			"DRDX": "<:diabloico:760201452957335552> X",
			"DWKD": "<:mod_wkd:1097321063077122068> modDiablo",
			"HWKD": "<:mod_wkd:1097321063077122068> modHellfire",
		},
		TickRates: map[int]string{
			20: "",
			30: "Fast",
			40: "Faster",
			50: "Fastest",
		},
		Difficulties: map[int]string{
			0: "Normal",
			1: "Nightmare",
			2: "Hell",
		},
		Options: map[string]string{
			OptionRunInTown:    "Run in Town",
			OptionFullQuests:   "Quests",
			OptionTheoQuest:    "Theo Quest",
			OptionCowQuest:     "Cow Quest",
			OptionFriendlyFire: "Friendly Fire",
		},
	}
}

// KindLabel resolves a game kind code, falling back to the raw code for
// unrecognized kinds.
func (t Tables) KindLabel(kind string) string {
	if label, ok := t.Kinds[kind]; ok {
		return label
	}
	return kind
}

// TickRateLabel resolves a tick rate, falling back to "speed: N".
func (t Tables) TickRateLabel(rate int) string {
	if label, ok := t.TickRates[rate]; ok {
		return label
	}
	return "speed: " + strconv.Itoa(rate)
}

// DifficultyLabel resolves a difficulty code, falling back to "Unknown".
func (t Tables) DifficultyLabel(difficulty int) string {
	if label, ok := t.Difficulties[difficulty]; ok {
		return label
	}
	return "Unknown"
}

func (t Tables) optionLabel(key, fallback string) string {
	if label, ok := t.Options[key]; ok {
		return label
	}
	return fallback
}

var messageFormattingChars = regexp.MustCompile("[-\\\\*_#|~:@\\[\\]()<>`]")

// EscapeFormatting backslash-escapes message formatting characters so that
// player-chosen names cannot inject markup into rendered messages.
func EscapeFormatting(text string) string {
	return messageFormattingChars.ReplaceAllString(text, `\$0`)
}

// Render projects a session onto its display string. The output is a pure
// function of the session and tables: ended sessions render struck through
// with an elapsed duration, live ones render emphasized.
func Render(s *Session, tables Tables) string {
	var b strings.Builder

	if s.Ended() {
		b.WriteString("~~" + s.Key + "~~")
	} else {
		b.WriteString("**" + s.Key + "**")
	}

	b.WriteString(" " + tables.KindLabel(s.Kind))
	b.WriteString(" " + s.Version)

	if label := tables.TickRateLabel(s.TickRate); label != "" {
		b.WriteString(" " + label)
	}
	b.WriteString(" " + tables.DifficultyLabel(s.Difficulty))

	if attrs := renderFlags(s, tables); len(attrs) != 0 {
		b.WriteString(" (" + strings.Join(attrs, ", ") + ")")
	}

	escaped := make([]string, len(s.Players))
	for i, name := range s.Players {
		escaped[i] = EscapeFormatting(name)
	}
	b.WriteString("\nPlayers: **" + strings.Join(escaped, "**, **") + "**")
	b.WriteString("\nStarted: <t:" + strconv.FormatInt(s.FirstSeenAt.Unix(), 10) + ":R>")

	if s.Ended() {
		minutes := int(s.EndedAt.Sub(s.FirstSeenAt).Round(time.Minute).Minutes())
		b.WriteString("\nEnded after: `" + FormatMinutes(minutes) + "`")
	}

	return b.String()
}

func renderFlags(s *Session, tables Tables) []string {
	var attrs []string
	if s.Flags.RunInTown {
		attrs = append(attrs, tables.optionLabel(OptionRunInTown, "Run in Town"))
	}
	if s.Flags.FullQuests {
		attrs = append(attrs, tables.optionLabel(OptionFullQuests, "Quests"))
	}
	// The base game has no Theo or cow quest; those flags are only meaningful
	// for the other kinds.
	if s.Flags.TheoQuest && s.Kind != "DRTL" {
		attrs = append(attrs, tables.optionLabel(OptionTheoQuest, "Theo Quest"))
	}
	if s.Flags.CowQuest && s.Kind != "DRTL" {
		attrs = append(attrs, tables.optionLabel(OptionCowQuest, "Cow Quest"))
	}
	if s.Flags.FriendlyFire {
		attrs = append(attrs, tables.optionLabel(OptionFriendlyFire, "Friendly Fire"))
	}
	return attrs
}

// RenderStatus renders the aggregate status line for the trailing slot.
func RenderStatus(liveCount int) string {
	if liveCount == 1 {
		return "There is currently **1** public game."
	}
	return fmt.Sprintf("There are currently **%d** public games.", liveCount)
}

// FormatMinutes renders a duration in whole minutes as English text, composing
// hours and minutes recursively: "1 minute", "45 minutes",
// "1 hour and 30 minutes", "2 hours and 5 minutes".
func FormatMinutes(minutes int) string {
	if minutes < 2 {
		return "1 minute"
	}
	if minutes < 60 {
		return strconv.Itoa(minutes) + " minutes"
	}

	var text string
	if minutes < 120 {
		text = "1 hour"
		minutes -= 60
	} else {
		hours := minutes / 60
		text = strconv.Itoa(hours) + " hours"
		minutes -= hours * 60
	}
	if minutes > 0 {
		text += " and " + FormatMinutes(minutes)
	}
	return text
}
