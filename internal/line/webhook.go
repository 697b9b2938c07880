package line

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/bot"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
)

// #region interfaces

// Handler answers one user event. *bot.Bot satisfies it.
type Handler interface {
	Handle(ctx context.Context, ev bot.Event) (bot.Reply, error)
}

// Replier sends a reply for a token. *Client satisfies it.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// Deduper records webhook event ids; false means the id was seen before.
// *billing.Store satisfies it.
type Deduper interface {
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)
}

// #endregion interfaces

// #region webhook

// Webhook is the /callback handler. It verifies the signature, queues each event
// in its user's mailbox, answers 200 and processes the mailboxes in the background.
// Events for one user run one at a time in arrival order, across deliveries.
type Webhook struct {
	secret  string
	handler Handler
	replier Replier
	dedupe  Deduper
	timeout time.Duration
	log     *log.Logger

	mu        sync.Mutex
	mailboxes map[string][]queuedEvent // a key is present while its worker runs
	wg        sync.WaitGroup
}

type queuedEvent struct {
	ctx     context.Context
	ev      bot.Event
	token   string
	eventID string
}

// NewWebhook wires the callback. dedupe may be nil.
func NewWebhook(secret string, h Handler, r Replier, dedupe Deduper, logger *log.Logger) *Webhook {
	return &Webhook{
		secret:    secret,
		handler:   h,
		replier:   r,
		dedupe:    dedupe,
		timeout:   90 * time.Second,
		log:       logging.ForComponent(logger, "webhook"),
		mailboxes: make(map[string][]queuedEvent),
	}
}

func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	cb, err := webhook.ParseRequest(w.secret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			w.log.Warn("invalid signature", "remote", r.RemoteAddr)
		} else {
			w.log.Warn("bad webhook body", "err", err)
		}
		http.Error(rw, "bad request", http.StatusBadRequest)
		return
	}

	base := context.WithoutCancel(r.Context())
	for _, raw := range cb.Events {
		ev, token, eventID, ok := ToEvent(raw)
		if !ok {
			continue
		}
		w.enqueue(queuedEvent{ctx: base, ev: ev, token: token, eventID: eventID})
	}
	rw.WriteHeader(http.StatusOK)
}

// Wait blocks until every mailbox is empty.
func (w *Webhook) Wait() {
	w.wg.Wait()
}

// enqueue appends to the user's mailbox and starts a worker if none is running.
func (w *Webhook) enqueue(q queuedEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pending, running := w.mailboxes[q.ev.UserID]
	w.mailboxes[q.ev.UserID] = append(pending, q)
	if !running {
		w.wg.Add(1)
		go w.drain(q.ev.UserID)
	}
}

// drain handles one user's mailbox until it is empty, then removes it.
func (w *Webhook) drain(userID string) {
	defer w.wg.Done()
	for {
		w.mu.Lock()
		pending := w.mailboxes[userID]
		if len(pending) == 0 {
			delete(w.mailboxes, userID)
			w.mu.Unlock()
			return
		}
		next := pending[0]
		w.mailboxes[userID] = pending[1:]
		w.mu.Unlock()

		ctx, cancel := context.WithTimeout(next.ctx, w.timeout)
		w.handle(ctx, next.ev, next.token, next.eventID)
		cancel()
	}
}

func (w *Webhook) handle(ctx context.Context, ev bot.Event, token, eventID string) {
	if w.seen(ctx, eventID) {
		w.log.Info("skip redelivered event", "event", eventID)
		return
	}
	reply, err := w.handler.Handle(ctx, ev)
	if err != nil {
		w.log.Error("handle event", "user", ev.UserID, "kind", ev.Kind, "err", err)
		return
	}
	if reply.Text == "" || token == "" {
		return
	}
	if err := w.replier.Reply(ctx, token, reply.Text); err != nil {
		w.log.Error("reply", "user", ev.UserID, "err", err)
	}
}

func (w *Webhook) seen(ctx context.Context, eventID string) bool {
	if w.dedupe == nil || eventID == "" {
		return false
	}
	first, err := w.dedupe.MarkEventProcessed(ctx, eventID)
	if err != nil {
		w.log.Warn("event dedupe unavailable", "event", eventID, "err", err)
		return false
	}
	return !first
}

// #endregion webhook

// #region conversion

// ToEvent converts a webhook event into a bot event. Only message events from a
// known user are kept.
func ToEvent(raw webhook.EventInterface) (ev bot.Event, replyToken, eventID string, ok bool) {
	me, isMsg := raw.(webhook.MessageEvent)
	if !isMsg {
		return bot.Event{}, "", "", false
	}
	userID := sourceUser(me.Source)
	if userID == "" {
		return bot.Event{}, "", "", false
	}
	ev = bot.Event{UserID: userID, Kind: bot.EventOther}
	switch m := me.Message.(type) {
	case webhook.TextMessageContent:
		ev.Kind, ev.Text, ev.MessageID = bot.EventText, m.Text, m.Id
	case webhook.ImageMessageContent:
		ev.Kind, ev.MessageID = bot.EventImage, m.Id
	}
	return ev, me.ReplyToken, me.WebhookEventId, true
}

func sourceUser(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}

// #endregion conversion
