// Package discord adapts the tracker's sink, presence, and command surfaces
// onto a Discord session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/louisbranch/gamewatch/internal/platform/timeouts"
	"github.com/louisbranch/gamewatch/internal/services/tracker/domain"
)

// Sink writes slot messages to a single Discord channel. Message IDs are the
// slot handles.
type Sink struct {
	session   *discordgo.Session
	channelID string
	connected atomic.Bool
}

// NewSink wires a sink to session and channelID and registers gateway
// handlers tracking connection state. It must be called before the session
// is opened so the initial Ready event is observed.
func NewSink(session *discordgo.Session, channelID string) *Sink {
	s := &Sink{session: session, channelID: channelID}
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) {
		s.connected.Store(true)
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		s.connected.Store(true)
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		s.connected.Store(false)
	})
	return s
}

// Create appends a new message and returns its ID.
func (s *Sink) Create(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.SinkCall)
	defer cancel()
	msg, err := s.session.ChannelMessageSend(s.channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return msg.ID, nil
}

// Edit rewrites an existing message in place.
func (s *Sink) Edit(ctx context.Context, handle, text string) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.SinkCall)
	defer cancel()
	_, err := s.session.ChannelMessageEdit(s.channelID, handle, text, discordgo.WithContext(ctx))
	return classify(err)
}

// Delete removes a message. The slot pool never deletes; this exists for
// operator tooling cleaning up a channel by hand.
func (s *Sink) Delete(ctx context.Context, handle string) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.SinkCall)
	defer cancel()
	err := s.session.ChannelMessageDelete(s.channelID, handle, discordgo.WithContext(ctx))
	return classify(err)
}

// Connected reports whether the gateway connection is up.
func (s *Sink) Connected() bool {
	return s.connected.Load()
}

// WaitConnected blocks until the gateway reconnects or ctx is canceled.
func (s *Sink) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if s.connected.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// UpdatePresence publishes the live session count as the bot's activity.
func (s *Sink) UpdatePresence(_ context.Context, liveCount int) error {
	if err := s.session.UpdateWatchStatus(0, fmt.Sprintf("Games online: %d", liveCount)); err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	return nil
}

// classify maps Discord REST failures onto the sink error contract. A
// message deleted out from under the pool reports as gone; everything else,
// including rate limits and timeouts, is transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil && rest.Message.Code == discordgo.ErrCodeUnknownMessage {
		return domain.ErrSlotGone
	}
	return domain.Transient(err)
}
