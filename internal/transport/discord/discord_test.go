package discord

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "branchwatch/internal/transport"
	logx "branchwatch/pkg/logx"
)

type fakeSession struct {
	channels    []*discordgo.Channel
	embeds      []*discordgo.MessageEmbed
	texts       []string
	crossposted []string
	lookups     int
	seq         int
}

func (f *fakeSession) next(ch string) *discordgo.Message {
	f.seq++
	return &discordgo.Message{ID: strconv.Itoa(f.seq), ChannelID: ch}
}

func (f *fakeSession) ChannelMessageSendEmbed(ch string, e *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.embeds = append(f.embeds, e)
	return f.next(ch), nil
}

func (f *fakeSession) ChannelMessageSend(ch, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.texts = append(f.texts, content)
	return f.next(ch), nil
}

func (f *fakeSession) ChannelMessageCrosspost(ch, id string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.crossposted = append(f.crossposted, ch+"/"+id)
	return &discordgo.Message{ID: id, ChannelID: ch}, nil
}

func (f *fakeSession) Channel(id string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.lookups++
	for _, c := range f.channels {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, errors.New("unknown channel")
}

func (f *fakeSession) GuildChannels(string, ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	f.lookups++
	return f.channels, nil
}

func (f *fakeSession) Close() error { return nil }

func TestSendAndCrosspostInNewsChannel(t *testing.T) {
	fs := &fakeSession{channels: []*discordgo.Channel{
		{ID: "10", Name: "general", Type: discordgo.ChannelTypeGuildText},
		{ID: "20", Name: "noita-updates", Type: discordgo.ChannelTypeGuildNews},
	}}
	a := newWithSession(Config{GuildID: "1", ChannelName: "noita-updates"}, logx.Nop(), fs)
	ctx := context.Background()

	at := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	ref, err := a.SendSummary(ctx, kit.Summary{Title: "Branch public has been updated", BuildID: "42", At: at})
	require.NoError(t, err)
	assert.Equal(t, kit.MessageRef{Channel: "20", ID: "1"}, ref)
	require.Len(t, fs.embeds, 1)
	assert.Equal(t, "Branch public has been updated", fs.embeds[0].Title)
	assert.Equal(t, "build 42", fs.embeds[0].Footer.Text)
	assert.Equal(t, "2024-06-03T12:00:00Z", fs.embeds[0].Timestamp)

	require.NoError(t, a.Crosspost(ctx, ref))
	ref2, err := a.SendText(ctx, "- BUGFIX: fixed")
	require.NoError(t, err)
	require.NoError(t, a.Crosspost(ctx, ref2))

	assert.Equal(t, []string{"- BUGFIX: fixed"}, fs.texts)
	assert.Equal(t, []string{"20/1", "20/2"}, fs.crossposted)
	assert.Equal(t, 1, fs.lookups, "channel lookup is cached")
}

func TestCrosspostSkippedOutsideNewsChannel(t *testing.T) {
	fs := &fakeSession{channels: []*discordgo.Channel{{ID: "10", Type: discordgo.ChannelTypeGuildText}}}
	a := newWithSession(Config{ChannelID: "10"}, logx.Nop(), fs)

	ref, err := a.SendText(context.Background(), "hi")
	require.NoError(t, err)
	require.NoError(t, a.Crosspost(context.Background(), ref))
	assert.Empty(t, fs.crossposted)
}

func TestResolveMissingChannel(t *testing.T) {
	fs := &fakeSession{}
	a := newWithSession(Config{GuildID: "1", ChannelName: "nope"}, logx.Nop(), fs)
	_, err := a.SendText(context.Background(), "hi")
	assert.Error(t, err)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{}, logx.Nop())
	assert.Error(t, err)
	_, err = New(Config{Token: "x"}, logx.Nop())
	assert.Error(t, err)
}
