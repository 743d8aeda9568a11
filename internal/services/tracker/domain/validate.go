package domain

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// restrictedNameChars mirrors the character restrictions the game client
// itself enforces on player names. Names containing any of these are not
// legitimate and the whole session is dropped.
const restrictedNameChars = ",<>%&\\\"?*#/: "

// Banlist is a set of forbidden words matched case-insensitively as
// substrings of player names.
type Banlist struct {
	words []string
}

// NewBanlist builds a banlist from a word list. Words are stored uppercased;
// empty entries are ignored.
func NewBanlist(words []string) Banlist {
	list := Banlist{}
	for _, word := range words {
		word = strings.ToUpper(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		list.words = append(list.words, word)
	}
	return list
}

// LoadBanlist reads a banlist file with one word per line.
func LoadBanlist(path string) (Banlist, error) {
	file, err := os.Open(path)
	if err != nil {
		return Banlist{}, fmt.Errorf("open banlist: %w", err)
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Banlist{}, fmt.Errorf("read banlist: %w", err)
	}
	return NewBanlist(words), nil
}

// Matches reports whether any banned word occurs in name, ignoring case.
func (b Banlist) Matches(name string) bool {
	upper := strings.ToUpper(name)
	for _, word := range b.words {
		if strings.Contains(upper, word) {
			return true
		}
	}
	return false
}

// Len reports the number of banned words.
func (b Banlist) Len() int {
	return len(b.words)
}

// ValidPlayerNames reports whether every player name is displayable and clean.
// A name fails when it contains a rune outside printable ASCII (32-126), a
// character the game client forbids in names, or a banned word as a
// case-insensitive substring. A failing name disqualifies the whole session.
func ValidPlayerNames(names []string, banlist Banlist) bool {
	for _, name := range names {
		if strings.ContainsAny(name, restrictedNameChars) {
			return false
		}
		for _, r := range name {
			if r < 32 || r > 126 {
				return false
			}
		}
		if banlist.Matches(name) {
			return false
		}
	}
	return true
}
