package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/i474232898/trail-status/internal/fetch"
	"github.com/i474232898/trail-status/internal/trail"
)

const (
	footerText = "Miami Valley MTB Trail Status"
	isoMillis  = "2006-01-02T15:04:05.000Z07:00"
)

var statusColors = map[trail.Status]int{
	trail.StatusOpen:       0x22c55e,
	trail.StatusClosed:     0xef4444,
	trail.StatusCaution:    0xf59e0b,
	trail.StatusFreezeThaw: 0x3b82f6,
	trail.StatusUnknown:    0x6b7280,
	trail.StatusError:      0x7c3aed,
}

var statusEmojis = map[trail.Status]string{
	trail.StatusOpen:       "🟢",
	trail.StatusClosed:     "🔴",
	trail.StatusCaution:    "🟡",
	trail.StatusFreezeThaw: "🔵",
	trail.StatusUnknown:    "⚪",
	trail.StatusError:      "🟣",
}

// Color returns the embed color for a status; unmapped statuses use the unknown color.
func Color(s trail.Status) int {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return statusColors[trail.StatusUnknown]
}

func Emoji(s trail.Status) string {
	if e, ok := statusEmojis[s]; ok {
		return e
	}
	return statusEmojis[trail.StatusUnknown]
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Color       int         `json:"color"`
	Timestamp   string      `json:"timestamp"`
	Footer      embedFooter `json:"footer"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// BuildPayload renders a change as a Discord-style embed message.
func BuildPayload(c Change) ([]byte, error) {
	oldLabel := strings.ToUpper(string(c.Old))
	if oldLabel == "" {
		oldLabel = "UNKNOWN"
	}
	emoji := Emoji(c.New)

	return json.Marshal(webhookPayload{Embeds: []embed{{
		Title:       fmt.Sprintf("%s %s Status Changed", emoji, c.Name),
		Description: fmt.Sprintf("**%s %s** → **%s %s**", Emoji(c.Old), oldLabel, emoji, strings.ToUpper(string(c.New))),
		Color:       Color(c.New),
		Timestamp:   c.At.UTC().Format(isoMillis),
		Footer:      embedFooter{Text: footerText},
	}}})
}

// Webhook posts change notifications to a single webhook URL.
type Webhook struct {
	url     string
	fetcher *fetch.Fetcher
}

func NewWebhook(url string, fetcher *fetch.Fetcher) *Webhook {
	return &Webhook{url: url, fetcher: fetcher}
}

func (w *Webhook) Send(ctx context.Context, c Change) error {
	body, err := BuildPayload(c)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	resp, err := w.fetcher.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, fetch.DefaultMaxAttempts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return fetch.CheckStatus(resp)
}

// ErrNotDelivered is returned by senders that record a change without delivering it.
var ErrNotDelivered = errors.New("notification not delivered: no webhook configured")

// LogSender records changes in the log when no webhook is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (l LogSender) Send(_ context.Context, c Change) error {
	l.Logger.Info("trail status changed (no webhook configured)",
		"trail", c.TrailID, "name", c.Name, "old", c.Old, "new", c.New)
	return ErrNotDelivered
}
