// Package bot routes one LINE user event through the funnel: commands, image
// intake, the free-stage intake, the paywall and the paid chat.
package bot

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/intake"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/orchestrator"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/signals"
)

// #endregion

// #region collaborators

// Billing answers whether a user currently holds a paid subscription.
type Billing interface {
	IsActive(ctx context.Context, lineUserID string) (bool, error)
}

// Vision reads a chat screenshot. *llm.Client satisfies it.
type Vision interface {
	AnalyzeImage(ctx context.Context, data []byte, mimeType, hint string) (*session.ImageInsight, error)
}

// ImageSource downloads the bytes of an image message.
type ImageSource interface {
	FetchImage(ctx context.Context, messageID string) ([]byte, string, error)
}

// #endregion

// #region event

// EventKind is the kind of user message.
type EventKind string

const (
	EventText  EventKind = "text"
	EventImage EventKind = "image"
	EventOther EventKind = "other"
)

// Event is one inbound user message, already stripped of transport details.
type Event struct {
	UserID    string
	Kind      EventKind
	Text      string
	MessageID string
}

// Reply is what to send back. An empty Text means stay silent.
type Reply struct {
	Text  string
	Stage session.Stage
	Turn  *orchestrator.TurnResult // set for paid-chat turns
}

// #endregion

// #region config

// Config holds the funnel settings.
type Config struct {
	CheckoutURL      string        // base of the subscription link; the user id is appended as ?uid=
	CheckoutCooldown time.Duration // minimum gap between two issued links
}

// DefaultConfig returns the production funnel settings.
func DefaultConfig() Config {
	return Config{CheckoutCooldown: 60 * time.Second}
}

// Deps are the collaborators. Sessions and Orchestrator are required.
type Deps struct {
	Sessions     session.Store
	Orchestrator *orchestrator.Orchestrator
	Billing      Billing
	Vision       Vision
	Images       ImageSource
	Logger       *log.Logger
	Now          func() time.Time
}

// errDiscard makes WithSession drop the working copy.
var errDiscard = errors.New("discard turn")

// #endregion

// #region bot

// Bot handles events for all users. It holds no per-user state of its own.
type Bot struct {
	cfg  Config
	deps Deps
	log  *log.Logger
	now  func() time.Time
}

// New wires a bot.
func New(cfg Config, deps Deps) (*Bot, error) {
	if deps.Sessions == nil {
		return nil, errors.New("bot: session store is required")
	}
	if deps.Orchestrator == nil {
		return nil, errors.New("bot: orchestrator is required")
	}
	if cfg.CheckoutCooldown <= 0 {
		cfg.CheckoutCooldown = DefaultConfig().CheckoutCooldown
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Bot{cfg: cfg, deps: deps, log: logging.ForComponent(deps.Logger, "bot"), now: now}, nil
}

// Handle processes one event. Everything that touches the session runs inside a
// single WithSession call, so events for one user are strictly serialized.
func (b *Bot) Handle(ctx context.Context, ev Event) (Reply, error) {
	if ev.UserID == "" {
		return Reply{}, nil
	}
	text := strings.TrimSpace(ev.Text)

	if ev.Kind == EventText {
		switch {
		case text == "#dump":
			return b.dump(ctx, ev.UserID)
		case IsReset(text):
			if err := b.deps.Sessions.Reset(ctx, ev.UserID); err != nil {
				return Reply{}, fmt.Errorf("reset %s: %w", ev.UserID, err)
			}
			b.log.Info("reset", "user", ev.UserID)
			return Reply{Text: welcomeReply, Stage: session.StageFree}, nil
		}
	}

	var out Reply
	err := b.deps.Sessions.WithSession(ctx, ev.UserID, func(s *session.Session) error {
		b.syncBilling(ctx, s)
		r, err := b.route(ctx, s, ev, text)
		out = r
		out.Stage = s.Stage
		return err
	})
	switch {
	case errors.Is(err, errDiscard):
		return out, nil
	case err != nil:
		return Reply{}, err
	}
	return out, nil
}

// #endregion

// #region routing

func (b *Bot) route(ctx context.Context, s *session.Session, ev Event, text string) (Reply, error) {
	switch ev.Kind {
	case EventImage:
		s.PendingImage = &session.PendingImage{MessageID: ev.MessageID, At: b.now()}
		b.log.Info("image queued", "user", s.UserID, "message", ev.MessageID)
		return Reply{Text: imageQueuedReply}, nil
	case EventText:
	default:
		return Reply{}, nil
	}

	if signals.IsScreenshotAsk(text) {
		return Reply{Text: screenshotOKReply}, nil
	}

	if s.PendingImage != nil {
		merged, ok := b.readPendingImage(ctx, s, text)
		if !ok {
			return Reply{Text: imageFailedReply}, nil
		}
		text = merged
	}

	switch s.Stage {
	case session.StageFree:
		res := intake.Handle(s, text)
		b.log.Info("intake", "user", s.UserID, "step", res.Step, "stage", s.Stage)
		return Reply{Text: res.Reply}, nil
	case session.StagePaidGate:
		if IsPaidButton(text) {
			return b.checkout(ctx, s), nil
		}
		return Reply{Text: gateReminderReply}, nil
	case session.StagePaidChat:
		return b.paidTurn(ctx, s, text)
	}
	return Reply{Text: fallbackReply}, nil
}

// syncBilling promotes paying users and demotes lapsed ones. The billing store is
// the source of truth; a lookup failure leaves the stage alone.
func (b *Bot) syncBilling(ctx context.Context, s *session.Session) {
	if b.deps.Billing == nil {
		return
	}
	active, err := b.deps.Billing.IsActive(ctx, s.UserID)
	if err != nil {
		b.log.Warn("billing check failed", "user", s.UserID, "err", err)
		return
	}
	switch {
	case active && s.Stage != session.StagePaidChat:
		b.log.Info("promote", "user", s.UserID, "from", s.Stage)
		s.Stage = session.StagePaidChat
	case !active && s.Stage == session.StagePaidChat:
		b.log.Info("demote", "user", s.UserID)
		s.Stage = session.StagePaidGate
	}
}

// readPendingImage consumes the queued image. The pending marker is cleared even
// when reading fails, so a broken image is not retried on every message.
func (b *Bot) readPendingImage(ctx context.Context, s *session.Session, text string) (string, bool) {
	pending := s.PendingImage
	s.PendingImage = nil
	if b.deps.Images == nil || b.deps.Vision == nil {
		b.log.Warn("image reading not configured", "user", s.UserID)
		return "", false
	}
	data, mime, err := b.deps.Images.FetchImage(ctx, pending.MessageID)
	if err != nil {
		b.log.Error("image fetch failed", "user", s.UserID, "message", pending.MessageID, "err", err)
		return "", false
	}
	insight, err := b.deps.Vision.AnalyzeImage(ctx, data, mime, imageHint+"\n"+text)
	if err != nil {
		b.log.Error("image analysis failed", "user", s.UserID, "err", err)
		return "", false
	}
	s.LastImage = insight
	b.log.Info("image read", "user", s.UserID, "kind", insight.Kind, "quotes", len(insight.QuoteTurns))
	return intake.Tidy(mergeImageText(insight, text)), true
}

// checkout answers the paid button with a subscription link, at most once per cooldown.
func (b *Bot) checkout(ctx context.Context, s *session.Session) Reply {
	if b.deps.Billing != nil {
		// the webhook may have landed between syncBilling and now
		if active, err := b.deps.Billing.IsActive(ctx, s.UserID); err == nil && active {
			s.Stage = session.StagePaidChat
			return Reply{Text: paidIntro(s.Slots)}
		}
	}
	now := b.now()
	if s.CheckoutIssuedAt != nil && now.Sub(*s.CheckoutIssuedAt) < b.cfg.CheckoutCooldown {
		return Reply{Text: checkoutPendingReply}
	}
	if b.cfg.CheckoutURL == "" {
		b.log.Error("checkout url not configured")
		return Reply{Text: checkoutFailedReply}
	}
	s.CheckoutIssuedAt = &now
	link := b.cfg.CheckoutURL + "?uid=" + url.QueryEscape(s.UserID)
	b.log.Info("checkout issued", "user", s.UserID)
	return Reply{Text: checkoutReply(link)}
}

// paidTurn runs the orchestrator. A generation failure discards the working copy,
// so nothing from this event is committed, and the apology is still sent.
func (b *Bot) paidTurn(ctx context.Context, s *session.Session, text string) (Reply, error) {
	res, err := b.deps.Orchestrator.RunTurn(ctx, s, text)
	if err != nil {
		if errors.Is(err, orchestrator.ErrGeneration) {
			return Reply{Text: res.Reply, Turn: &res}, errDiscard
		}
		return Reply{}, err
	}
	reply := res.Reply
	if res.Recap != "" {
		reply += "\n\n――\n" + res.Recap
	}
	return Reply{Text: reply, Turn: &res}, nil
}

// #endregion

// #region dump

func (b *Bot) dump(ctx context.Context, userID string) (Reply, error) {
	snap, err := b.deps.Sessions.Snapshot(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("dump %s: %w", userID, err)
	}
	out, err := snap.Compact().DumpJSON()
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: "```json\n" + out + "\n```", Stage: snap.Session.Stage}, nil
}

// #endregion
