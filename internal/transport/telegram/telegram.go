// Package telegram implements the outbound Messenger port on top of telebot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"fabrica/internal/transport"
	logx "fabrica/pkg/logx"
)

type Config struct {
	Token string
	// PollTimeout only matters if the caller also runs the inbound poller.
	PollTimeout time.Duration
}

type Adapter struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{bot: b, log: log}, nil
}

func (a *Adapter) PostToChannel(ctx context.Context, channelID, text string) error {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return transport.Permanent(fmt.Errorf("bad channel id %q: %w", channelID, err))
	}
	return a.send(ctx, tele.ChatID(id), text)
}

func (a *Adapter) SendDM(ctx context.Context, userID, text string) error {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return transport.Permanent(fmt.Errorf("bad user id %q: %w", userID, err))
	}
	return a.send(ctx, &tele.User{ID: id}, text)
}

func (a *Adapter) send(ctx context.Context, to tele.Recipient, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.bot.Send(to, text, tele.NoPreview)
	if err == nil {
		return nil
	}
	return classifySendError(err)
}

// classifySendError maps platform errors into the delivery taxonomy so the
// engine can decide retry vs fail-fast.
func classifySendError(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		after := time.Duration(flood.RetryAfter) * time.Second
		return transport.RetryAfter(err, after)
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		// 4xx other than flood control means the destination cannot accept
		// this message, now or later (blocked bot, deleted chat, bad request).
		if apiErr.Code >= 400 && apiErr.Code < 500 {
			return transport.Permanent(err)
		}
	}
	return err
}
