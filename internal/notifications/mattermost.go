// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

// Package notifications posts dispatch outcomes to a Mattermost incoming
// webhook: a "rate it" prompt when a series was completed and an alert when
// an update failed.
package notifications

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pjaws/internal/config"
	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/metrics"
	"github.com/tomtom215/pjaws/internal/models"
)

const (
	kindCompleted = "completed"
	kindFailure   = "failure"

	colorCompleted = "#00cc00"
	colorFailure   = "#dc143c"

	authorName = "Scrobbler"
)

// Notifier receives every dispatch outcome.
type Notifier interface {
	Notify(ctx context.Context, ev *models.WatchEvent, backendName string, res models.ScrobbleResult)
}

// Noop discards notifications.
type Noop struct{}

func (Noop) Notify(context.Context, *models.WatchEvent, string, models.ScrobbleResult) {}

// New returns a Mattermost notifier when cfg is enabled and Noop otherwise.
func New(cfg *config.MattermostConfig) Notifier {
	if !cfg.Enabled() {
		return Noop{}
	}
	return NewMattermost(cfg)
}

// Payload is the incoming-webhook message body.
type Payload struct {
	Channel     string       `json:"channel"`
	Attachments []Attachment `json:"attachments"`
	Fallback    string       `json:"fallback,omitempty"`
}

// Attachment is a message attachment (Slack compatible).
type Attachment struct {
	Color      string `json:"color,omitempty"`
	AuthorName string `json:"author_name,omitempty"`
	AuthorIcon string `json:"author_icon,omitempty"`
	Title      string `json:"title,omitempty"`
	TitleLink  string `json:"title_link,omitempty"`
	Text       string `json:"text"`
}

// Mattermost posts to an incoming webhook.
type Mattermost struct {
	webhookURL string
	channel    string
	iconRate   string
	iconFail   string
	client     *http.Client
}

// NewMattermost creates a Mattermost notifier.
func NewMattermost(cfg *config.MattermostConfig) *Mattermost {
	return &Mattermost{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		iconRate:   cfg.IconRate,
		iconFail:   cfg.IconFail,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify sends a completion prompt for completed results and an alert for
// error results. Delivery errors are logged only.
func (m *Mattermost) Notify(ctx context.Context, ev *models.WatchEvent, backendName string, res models.ScrobbleResult) {
	var (
		kind    string
		payload Payload
	)
	switch {
	case res.Completed:
		kind = kindCompleted
		payload = m.completedPayload(ev, res.Link)
	case res.Severity == models.SeverityError:
		kind = kindFailure
		payload = m.failurePayload(ev, backendName, res.Message)
	default:
		return
	}

	err := m.Send(ctx, payload)
	metrics.RecordNotification(kind, err)
	if err != nil {
		l := logging.Ctx(ctx)
		l.Warn().Err(err).Str("kind", kind).Msg("Mattermost notification failed")
	}
}

func (m *Mattermost) completedPayload(ev *models.WatchEvent, link string) Payload {
	title := seriesTitle(ev)
	return Payload{
		Channel: m.channel,
		Attachments: []Attachment{{
			Color:      colorCompleted,
			AuthorName: authorName,
			AuthorIcon: m.iconRate,
			Title:      title,
			TitleLink:  link,
			Text:       fmt.Sprintf("This show is now marked as completed, don't forget to [rate](%s) it!", link),
		}},
		Fallback: fmt.Sprintf("**%s** completed, don't forget to [rate](%s) it!", title, link),
	}
}

func (m *Mattermost) failurePayload(ev *models.WatchEvent, backendName, reason string) Payload {
	title := fmt.Sprintf("%s - S%dE%d", seriesTitle(ev), ev.Season, ev.Episode)
	text := fmt.Sprintf("%s: %s", backendName, reason)
	return Payload{
		Channel: m.channel,
		Attachments: []Attachment{{
			Color:      colorFailure,
			AuthorName: authorName,
			AuthorIcon: m.iconFail,
			Title:      title,
			Text:       text,
		}},
		Fallback: fmt.Sprintf("**%s**: %s", title, text),
	}
}

// Send posts payload to the webhook.
func (m *Mattermost) Send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mattermost webhook returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

func seriesTitle(ev *models.WatchEvent) string {
	if ev.SeriesTitle != "" {
		return ev.SeriesTitle
	}
	return "anidb-" + ev.SeriesKey
}
