package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"time"

	"github.com/louisbranch/gamewatch/internal/platform/timeouts"
	"github.com/louisbranch/gamewatch/internal/services/tracker/domain"
)

// ErrMalformed reports snapshot output that could not be decoded. Callers
// treat it as an empty report rather than aborting the cycle.
var ErrMalformed = errors.New("malformed snapshot output")

// MemberSighting pairs a network address with the player name seen there.
type MemberSighting struct {
	Address string
	Name    string
}

// SnapshotReport is one fetch result: the visible game sessions plus any
// network-level player sightings the discovery tool reported.
type SnapshotReport struct {
	Games     []domain.Snapshot
	Sightings []MemberSighting
}

// Source produces snapshot reports, one per cycle.
type Source interface {
	Fetch(ctx context.Context) (SnapshotReport, error)
}

// SubprocessSource runs an external discovery command and decodes its stdout.
// The command is trusted; it is the same binary the games themselves use to
// announce on the network.
type SubprocessSource struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// Fetch runs the discovery command once. A timeout is returned as a wrapped
// context.DeadlineExceeded so the caller can abort the cycle; undecodable
// output is returned as ErrMalformed.
func (s *SubprocessSource) Fetch(ctx context.Context) (SnapshotReport, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = timeouts.SnapshotFetch
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return SnapshotReport{}, fmt.Errorf("snapshot command: %w", ctx.Err())
	}
	if err != nil {
		return SnapshotReport{}, fmt.Errorf("run snapshot command: %w", err)
	}
	if stderr.Len() > 0 {
		log.Printf("snapshot command stderr: %s", bytes.TrimSpace(stderr.Bytes()))
	}

	return ParseSnapshotReport(stdout.Bytes())
}

type rawGame struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Version      string   `json:"version"`
	TickRate     int      `json:"tick_rate"`
	Difficulty   int      `json:"difficulty"`
	RunInTown    bool     `json:"run_in_town"`
	FullQuests   bool     `json:"full_quests"`
	TheoQuest    bool     `json:"theo_quest"`
	CowQuest     bool     `json:"cow_quest"`
	FriendlyFire bool     `json:"friendly_fire"`
	Players      []string `json:"players"`
}

type rawSighting struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type rawReport struct {
	Games     []rawGame     `json:"games"`
	Sightings []rawSighting `json:"player_sightings"`
}

// ParseSnapshotReport decodes discovery output. Older discovery builds emit a
// bare JSON array of games; newer ones wrap it in an object that also carries
// network player sightings. Empty output is a valid empty report.
func ParseSnapshotReport(data []byte) (SnapshotReport, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return SnapshotReport{}, nil
	}

	var raw rawReport
	if data[0] == '[' {
		if err := json.Unmarshal(data, &raw.Games); err != nil {
			return SnapshotReport{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	} else {
		if err := json.Unmarshal(data, &raw); err != nil {
			return SnapshotReport{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	report := SnapshotReport{
		Games:     make([]domain.Snapshot, 0, len(raw.Games)),
		Sightings: make([]MemberSighting, 0, len(raw.Sightings)),
	}
	for _, g := range raw.Games {
		report.Games = append(report.Games, domain.Snapshot{
			ID:         g.ID,
			Kind:       g.Type,
			Version:    g.Version,
			TickRate:   g.TickRate,
			Difficulty: g.Difficulty,
			Flags: domain.Flags{
				RunInTown:    g.RunInTown,
				FullQuests:   g.FullQuests,
				TheoQuest:    g.TheoQuest,
				CowQuest:     g.CowQuest,
				FriendlyFire: g.FriendlyFire,
			},
			Players: g.Players,
		})
	}
	for _, s := range raw.Sightings {
		report.Sightings = append(report.Sightings, MemberSighting{Address: s.Address, Name: s.Name})
	}
	return report, nil
}
