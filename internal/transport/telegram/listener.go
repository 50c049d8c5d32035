package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"fabrica/internal/event"
	"fabrica/internal/routing"
	logx "fabrica/pkg/logx"
)

// ChatHandler receives every routable inbound message. The listener ignores
// the outcome; the router logs it.
type ChatHandler func(ctx context.Context, p event.ChatPayload)

// Listener runs the long poller: plain text goes to the chat handler, slash
// commands mutate the routing table.
type Listener struct {
	adapter *Adapter
	handler ChatHandler
	table   *routing.Table
	log     logx.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewListener(a *Adapter, h ChatHandler, table *routing.Table, log logx.Logger) *Listener {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Listener{
		adapter: a,
		handler: h,
		table:   table,
		log:     log.With(logx.String("comp", "telegram")),
	}
}

func (l *Listener) Start(ctx context.Context) error {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})

	b := l.adapter.bot
	b.Handle(tele.OnText, func(c tele.Context) error {
		l.onText(ctx, c)
		return nil
	})
	b.Handle("/mode", func(c tele.Context) error { return l.cmdMode(ctx, c) })
	b.Handle("/subscribe", func(c tele.Context) error { return l.cmdSubscribe(ctx, c) })
	b.Handle("/unsubscribe", func(c tele.Context) error { return l.cmdUnsubscribe(ctx, c) })
	b.Handle("/watch", func(c tele.Context) error { return l.cmdWatch(ctx, c) })
	b.Handle("/unwatch", func(c tele.Context) error { return l.cmdUnwatch(ctx, c) })
	b.Handle("/debug", func(c tele.Context) error { return l.cmdDebug(ctx, c) })

	go func() {
		defer close(l.done)
		l.log.Info("telegram poller starting")
		b.Start()
	}()
	go func() {
		<-ctx.Done()
		b.Stop()
	}()
	return nil
}

func (l *Listener) Stop(ctx context.Context) error {
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		select {
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *Listener) onText(ctx context.Context, c tele.Context) {
	msg := c.Message()
	if msg == nil || msg.Sender == nil {
		return
	}
	p := event.ChatPayload{
		ChannelID:   strconv.FormatInt(msg.Chat.ID, 10),
		AuthorID:    strconv.FormatInt(msg.Sender.ID, 10),
		Text:        msg.Text,
		IsBotAuthor: msg.Sender.IsBot,
	}
	l.handler(ctx, p)
}

func (l *Listener) cmdMode(ctx context.Context, c tele.Context) error {
	arg := strings.ToLower(strings.TrimSpace(c.Message().Payload))
	switch arg {
	case "off", "silent", "on", "transparent":
	default:
		return c.Reply("Usage: /mode off|silent|on|transparent")
	}
	mode := routing.ParseMode(arg)
	channelID := strconv.FormatInt(c.Chat().ID, 10)
	setBy := strconv.FormatInt(c.Sender().ID, 10)
	if err := l.table.SetChannelMode(ctx, channelID, mode, setBy); err != nil {
		l.log.Warn("mode change failed", logx.String("channel", channelID), logx.Err(err))
		return c.Reply("Could not change the mode, try again later.")
	}
	return c.Reply(fmt.Sprintf("Translation mode set to %s.", mode))
}

func (l *Listener) cmdSubscribe(ctx context.Context, c tele.Context) error {
	lang := strings.ToLower(strings.TrimSpace(c.Message().Payload))
	if lang == "" {
		return c.Reply("Usage: /subscribe <language code>, e.g. /subscribe hi")
	}
	channelID := strconv.FormatInt(c.Chat().ID, 10)
	userID := strconv.FormatInt(c.Sender().ID, 10)
	if err := l.table.Subscribe(ctx, channelID, userID, lang); err != nil {
		return c.Reply("Subscription failed, try again later.")
	}
	return c.Reply(fmt.Sprintf("Subscribed: you will receive %s translations by DM.", lang))
}

func (l *Listener) cmdUnsubscribe(ctx context.Context, c tele.Context) error {
	lang := strings.ToLower(strings.TrimSpace(c.Message().Payload))
	if lang == "" {
		return c.Reply("Usage: /unsubscribe <language code>")
	}
	channelID := strconv.FormatInt(c.Chat().ID, 10)
	userID := strconv.FormatInt(c.Sender().ID, 10)
	if err := l.table.Unsubscribe(ctx, channelID, userID, lang); err != nil {
		return c.Reply("Unsubscribe failed, try again later.")
	}
	return c.Reply("Unsubscribed.")
}

// cmdWatch: /watch <source> <project> <level>
func (l *Listener) cmdWatch(ctx context.Context, c tele.Context) error {
	parts := strings.Fields(c.Message().Payload)
	if len(parts) != 3 {
		return c.Reply("Usage: /watch github|plane <project> off|minimal|important|all")
	}
	source := event.Source(strings.ToLower(parts[0]))
	if source != event.SourceGitHub && source != event.SourcePlane {
		return c.Reply("Unknown source, expected github or plane.")
	}
	level := routing.ParseWatchLevel(parts[2])
	channelID := strconv.FormatInt(c.Chat().ID, 10)
	if err := l.table.SetWatch(ctx, channelID, source, parts[1], level); err != nil {
		return c.Reply("Watch update failed, try again later.")
	}
	if level == routing.LevelOff {
		return c.Reply(fmt.Sprintf("No longer watching %s/%s.", source, parts[1]))
	}
	return c.Reply(fmt.Sprintf("Watching %s/%s at level %s.", source, parts[1], level))
}

func (l *Listener) cmdUnwatch(ctx context.Context, c tele.Context) error {
	parts := strings.Fields(c.Message().Payload)
	if len(parts) != 2 {
		return c.Reply("Usage: /unwatch github|plane <project>")
	}
	channelID := strconv.FormatInt(c.Chat().ID, 10)
	if err := l.table.RemoveWatch(ctx, channelID, event.Source(strings.ToLower(parts[0])), parts[1]); err != nil {
		return c.Reply("Unwatch failed, try again later.")
	}
	return c.Reply("Watch removed.")
}

func (l *Listener) cmdDebug(ctx context.Context, c tele.Context) error {
	arg := strings.ToLower(strings.TrimSpace(c.Message().Payload))
	enabled := arg == "on"
	if arg != "on" && arg != "off" {
		return c.Reply("Usage: /debug on|off")
	}
	channelID := strconv.FormatInt(c.Chat().ID, 10)
	userID := strconv.FormatInt(c.Sender().ID, 10)
	if err := l.table.SetDebug(ctx, channelID, userID, enabled); err != nil {
		return c.Reply("Debug toggle failed, try again later.")
	}
	if enabled {
		return c.Reply("Debug on: you will receive translations of your own messages.")
	}
	return c.Reply("Debug off.")
}
