// Package alerting posts operator notifications to a chat webhook.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/logging"
)

const (
	alertTitle = "Server Error Alert"
	alertColor = 15158332
)

// Alert is an operator-facing error report.
type Alert struct {
	Type    string
	Message string
	Context map[string]string
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds,omitempty"`
}

// Notifier sends messages to one webhook. Alerts share a single cooldown
// window: after an alert is attempted, further alerts are dropped until
// the window passes. A Notifier without a URL is disabled.
type Notifier struct {
	url      string
	cooldown time.Duration
	client   *http.Client
	now      func() time.Time
	logger   logging.Logger

	mu       sync.Mutex
	lastSent time.Time
}

type Option func(*Notifier)

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

func NewNotifier(url string, cooldown time.Duration, logger logging.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		url:      url,
		cooldown: cooldown,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		logger:   logger.With("module", "alerting"),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// Alert sends a as an embed. It reports whether the webhook accepted it;
// failures are logged, never returned.
func (n *Notifier) Alert(ctx context.Context, a Alert) bool {
	if !n.Enabled() {
		n.logger.Debug(ctx, "alert webhook not configured", "type", a.Type)
		return false
	}
	if !n.reserve() {
		n.logger.Warn(ctx, "alert suppressed by cooldown", "type", a.Type)
		return false
	}

	keys := make([]string, 0, len(a.Context))
	for k := range a.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := []embedField{{Name: "Error Type", Value: a.Type, Inline: true}}
	for _, k := range keys {
		fields = append(fields, embedField{Name: k, Value: a.Context[k], Inline: true})
	}

	return n.post(ctx, webhookPayload{Embeds: []embed{{
		Title:       alertTitle,
		Description: truncate(a.Message, 1000),
		Color:       alertColor,
		Fields:      fields,
		Timestamp:   n.now().UTC().Format(time.RFC3339),
	}}})
}

// Post sends plain content. It is not subject to the cooldown.
func (n *Notifier) Post(ctx context.Context, content string) bool {
	if !n.Enabled() {
		n.logger.Debug(ctx, "webhook not configured")
		return false
	}
	return n.post(ctx, webhookPayload{Content: content})
}

func (n *Notifier) reserve() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if !n.lastSent.IsZero() && now.Sub(n.lastSent) < n.cooldown {
		return false
	}
	n.lastSent = now
	return true
}

func (n *Notifier) post(ctx context.Context, p webhookPayload) bool {
	if err := n.send(ctx, p); err != nil {
		n.logger.Error(ctx, "webhook error", "error", err)
		return false
	}
	return true
}

func (n *Notifier) send(ctx context.Context, p webhookPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
