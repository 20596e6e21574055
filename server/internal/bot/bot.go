// Package bot is the Telegram front-end. Calculator commands are parsed into
// dosing requests and answered with the same text the CLI prints; photos are
// passed to the strip reader.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/poolchem/poolchem/pkg/report"
	"github.com/poolchem/poolchem/server/internal/service"
)

// downloadTimeout bounds fetching a photo from Telegram's file server.
const downloadTimeout = 30 * time.Second

// Bot answers Telegram messages using svc.
type Bot struct {
	api  *tgbotapi.BotAPI
	svc  *service.Service
	http *http.Client
}

// New authorizes token with Telegram and returns a Bot.
func New(token string, svc *service.Service, debug bool) (*Bot, error) {
	tgbotapi.SetLogger(slogAdapter{}) //nolint:errcheck
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("bot: authorize: %w", err)
	}
	api.Debug = debug
	return &Bot{
		api:  api,
		svc:  svc,
		http: &http.Client{Timeout: downloadTimeout},
	}, nil
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	slog.Info("bot: authorized", "account", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	var text string
	switch {
	case len(m.Photo) > 0:
		text = b.handlePhoto(ctx, m)
	case m.IsCommand():
		slog.Debug("bot: command", "command", m.Command(), "chat_id", m.Chat.ID)
		text = b.respond(m.Command(), m.CommandArguments())
	default:
		text = "I don't understand. Use /help to see available commands."
	}

	msg := tgbotapi.NewMessage(m.Chat.ID, text)
	msg.ReplyToMessageID = m.MessageID
	if _, err := b.api.Send(msg); err != nil {
		slog.Error("bot: send", "chat_id", m.Chat.ID, "err", err)
	}
}

// respond computes the reply text for a command. It needs no network access.
func (b *Bot) respond(command, args string) string {
	switch command {
	case "start", "help":
		return helpText()
	case "ranges":
		return report.Captions(rangeCaptions(b.svc.Catalog()))
	}

	req, ok, err := parseCommand(command, args)
	if !ok {
		return "Unknown command. Use /help to see available commands."
	}
	if err != nil {
		return fmt.Sprintf("%v\nUsage: %s", err, usage[command])
	}

	resp, err := b.svc.Calculate(service.FrontendBot, req)
	if err != nil {
		if service.IsClientError(err) {
			return err.Error()
		}
		slog.Error("bot: calculate", "mode", req.Mode, "err", err)
		return "Something went wrong. Please try again later."
	}
	return report.Calculation(resp.Result, resp.Advisories, resp.Captions)
}

// handlePhoto downloads the largest size of the photo and reads it as a strip.
func (b *Bot) handlePhoto(ctx context.Context, m *tgbotapi.Message) string {
	largest := m.Photo[0]
	for _, p := range m.Photo[1:] {
		if p.Width*p.Height > largest.Width*largest.Height {
			largest = p
		}
	}

	url, err := b.api.GetFileDirectURL(largest.FileID)
	if err != nil {
		slog.Error("bot: resolve photo", "file_id", largest.FileID, "err", err)
		return "Could not fetch the photo. Please try again."
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "Could not fetch the photo. Please try again."
	}
	res, err := b.http.Do(req)
	if err != nil {
		slog.Error("bot: download photo", "err", err)
		return "Could not fetch the photo. Please try again."
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		slog.Error("bot: download photo", "status", res.StatusCode)
		return "Could not fetch the photo. Please try again."
	}

	return b.analyze(ctx, res.Body)
}

func (b *Bot) analyze(ctx context.Context, img io.Reader) string {
	resp, err := b.svc.Analyze(ctx, service.FrontendBot, img)
	if err != nil {
		if service.IsClientError(err) {
			return "That does not look like a test strip photo: " + err.Error()
		}
		if !errors.Is(err, context.Canceled) {
			slog.Error("bot: analyze", "err", err)
		}
		return "Something went wrong. Please try again later."
	}
	return report.Strip(resp.Reading, resp.Advisories, resp.Captions, resp.Notice)
}

// rangeCaptions returns every configured range caption once.
func rangeCaptions(cat service.Catalog) []string {
	out := make([]string, 0, len(cat.Ranges))
	for _, rg := range cat.Ranges {
		out = append(out, rg.Caption())
	}
	return out
}

// slogAdapter routes the Telegram client's logging to slog at debug level.
type slogAdapter struct{}

func (slogAdapter) Println(v ...interface{}) {
	slog.Debug(strings.TrimSpace(fmt.Sprintln(v...)), "component", "telegram")
}

func (slogAdapter) Printf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "telegram")
}
