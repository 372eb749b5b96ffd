// Package telegram delivers notifications through a Telegram bot. The bot
// only sends, so it runs offline without a poller.
package telegram

import (
	"context"
	"errors"
	"html"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "branchwatch/internal/transport"
	logx "branchwatch/pkg/logx"
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// CrosspostChatIDs receive a forward of every delivered message.
	CrosspostChatIDs []int64
}

// bot is the subset of *tele.Bot the adapter calls.
type bot interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Forward(to tele.Recipient, msg tele.Editable, opts ...interface{}) (*tele.Message, error)
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot bot
}

var _ kit.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return newWithBot(cfg, log, b), nil
}

func newWithBot(cfg Config, log logx.Logger, b bot) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, bot: b}
}

func (a *Adapter) Name() string { return "telegram" }

func (a *Adapter) SendSummary(ctx context.Context, s kit.Summary) (kit.MessageRef, error) {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(s.Title))
	b.WriteString("</b>")
	if s.BuildID != "" {
		b.WriteString("\n<i>build ")
		b.WriteString(html.EscapeString(s.BuildID))
		b.WriteString("</i>")
	}
	return a.send(ctx, b.String(), tele.ModeHTML)
}

func (a *Adapter) SendText(ctx context.Context, text string) (kit.MessageRef, error) {
	return a.send(ctx, text, tele.ModeDefault)
}

func (a *Adapter) send(ctx context.Context, text string, mode tele.ParseMode) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	opt := &tele.SendOptions{
		ParseMode:             mode,
		DisableWebPagePreview: true,
		ThreadID:              a.cfg.ThreadID,
	}
	m, err := a.bot.Send(&tele.Chat{ID: a.cfg.ChatID}, text, opt)
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{Channel: strconv.FormatInt(a.cfg.ChatID, 10), ID: strconv.Itoa(m.ID)}, nil
}

// Crosspost forwards the message to every configured chat. All targets are
// attempted; the joined error reports the failures.
func (a *Adapter) Crosspost(ctx context.Context, ref kit.MessageRef) error {
	if ref.IsZero() || len(a.cfg.CrosspostChatIDs) == 0 {
		return nil
	}
	chatID, err := strconv.ParseInt(ref.Channel, 10, 64)
	if err != nil {
		return err
	}
	src := tele.StoredMessage{MessageID: ref.ID, ChatID: chatID}

	var errs []error
	for _, to := range a.cfg.CrosspostChatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Forward(&tele.Chat{ID: to}, src); err != nil {
			a.log.Debug("telegram forward failed", logx.Int64("to", to), logx.Err(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Adapter) Close() error { return nil }
