// Package discord delivers notifications to a Discord channel over the REST
// API. Announcement channels get every message crossposted to followers.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	kit "branchwatch/internal/transport"
	logx "branchwatch/pkg/logx"
)

type Config struct {
	Token string
	// ChannelID wins over GuildID+ChannelName when set.
	ChannelID   string
	GuildID     string
	ChannelName string
	Color       int
}

// session is the subset of *discordgo.Session the adapter calls.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageCrosspost(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	Close() error
}

type Adapter struct {
	cfg Config
	log logx.Logger
	s   session

	mu      sync.Mutex
	channel *discordgo.Channel
}

var _ kit.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	tok := strings.TrimSpace(cfg.Token)
	if tok == "" {
		return nil, errors.New("discord token is empty")
	}
	if cfg.ChannelID == "" && (cfg.GuildID == "" || cfg.ChannelName == "") {
		return nil, errors.New("discord: channel_id or guild_id+channel_name required")
	}
	if !strings.HasPrefix(tok, "Bot ") {
		tok = "Bot " + tok
	}
	s, err := discordgo.New(tok)
	if err != nil {
		return nil, err
	}
	return newWithSession(cfg, log, s), nil
}

func newWithSession(cfg Config, log logx.Logger, s session) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Color == 0 {
		cfg.Color = 0xC27C0E
	}
	return &Adapter{cfg: cfg, log: log, s: s}
}

func (a *Adapter) Name() string { return "discord" }

// resolve looks the target channel up once and caches it.
func (a *Adapter) resolve(ctx context.Context) (*discordgo.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.channel != nil {
		return a.channel, nil
	}
	opt := discordgo.WithContext(ctx)

	if id := strings.TrimSpace(a.cfg.ChannelID); id != "" {
		ch, err := a.s.Channel(id, opt)
		if err != nil {
			return nil, fmt.Errorf("discord channel %s: %w", id, err)
		}
		a.channel = ch
		return ch, nil
	}

	chs, err := a.s.GuildChannels(a.cfg.GuildID, opt)
	if err != nil {
		return nil, fmt.Errorf("discord guild %s channels: %w", a.cfg.GuildID, err)
	}
	for _, ch := range chs {
		if ch != nil && ch.Name == a.cfg.ChannelName {
			a.channel = ch
			a.log.Info("discord channel resolved", logx.String("channel", ch.Name), logx.String("id", ch.ID))
			return ch, nil
		}
	}
	return nil, fmt.Errorf("discord guild %s has no channel %q", a.cfg.GuildID, a.cfg.ChannelName)
}

func (a *Adapter) SendSummary(ctx context.Context, s kit.Summary) (kit.MessageRef, error) {
	ch, err := a.resolve(ctx)
	if err != nil {
		return kit.MessageRef{}, err
	}
	embed := &discordgo.MessageEmbed{Title: s.Title, Color: a.cfg.Color}
	if s.BuildID != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "build " + s.BuildID}
	}
	if !s.At.IsZero() {
		embed.Timestamp = s.At.UTC().Format(time.RFC3339)
	}
	m, err := a.s.ChannelMessageSendEmbed(ch.ID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{Channel: m.ChannelID, ID: m.ID}, nil
}

func (a *Adapter) SendText(ctx context.Context, text string) (kit.MessageRef, error) {
	ch, err := a.resolve(ctx)
	if err != nil {
		return kit.MessageRef{}, err
	}
	m, err := a.s.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{Channel: m.ChannelID, ID: m.ID}, nil
}

// Crosspost publishes a message in an announcement channel to its followers.
// Plain text channels cannot crosspost; the call is a no-op there.
func (a *Adapter) Crosspost(ctx context.Context, ref kit.MessageRef) error {
	if ref.IsZero() {
		return nil
	}
	ch, err := a.resolve(ctx)
	if err != nil {
		return err
	}
	if ch.Type != discordgo.ChannelTypeGuildNews {
		return nil
	}
	_, err = a.s.ChannelMessageCrosspost(ref.Channel, ref.ID, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) Close() error { return a.s.Close() }
