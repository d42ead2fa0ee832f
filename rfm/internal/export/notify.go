package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
	"github.com/obsidianstack/rfmstack/rfm/internal/config"
)

const notifyTimeout = 10 * time.Second

// Notifier posts the run summary to a webhook, retrying transient failures.
type Notifier struct {
	cfg     config.WebhookConfig
	client  *http.Client
	backoff *backoff
	now     func() time.Time
}

// NewNotifier returns a Notifier for cfg, or nil when cfg.Type is empty.
// A nil *Notifier is valid and Notify on it is a no-op.
func NewNotifier(cfg config.WebhookConfig) *Notifier {
	if cfg.Type == "" {
		return nil
	}
	return &Notifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: notifyTimeout},
		backoff: newBackoff(backoffInitial, backoffMax),
		now:     time.Now,
	}
}

// permanentError marks a delivery failure that retrying will not fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Notify delivers res. It makes up to cfg.Retries attempts, sleeping with
// exponential backoff between them. 4xx responses other than 429 are not
// retried.
func (n *Notifier) Notify(ctx context.Context, res *compute.Result) error {
	if n == nil {
		return nil
	}
	url := n.cfg.URL()
	if url == "" {
		return fmt.Errorf("export: webhook: environment variable %q is empty", n.cfg.URLEnv)
	}
	body, err := n.payload(res)
	if err != nil {
		return fmt.Errorf("export: webhook: %w", err)
	}

	attempts := max(n.cfg.Retries, 1)
	n.backoff.reset()
	for attempt := 1; ; attempt++ {
		err = n.post(ctx, url, body)
		if err == nil {
			slog.Debug("export: webhook delivered", "type", n.cfg.Type, "attempt", attempt)
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) || attempt >= attempts {
			return fmt.Errorf("export: webhook %s: giving up after %d attempt(s): %w", n.cfg.Type, attempt, err)
		}

		wait := n.backoff.next()
		slog.Warn("export: webhook delivery failed, will retry",
			"type", n.cfg.Type,
			"attempt", attempt,
			"err", err,
			"retry_in", wait,
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("export: webhook: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (n *Notifier) payload(res *compute.Result) ([]byte, error) {
	s := res.Summary
	text := fmt.Sprintf("RFM segmentation %s: %d customers, revenue %s, avg order %s, repeat rate %.1f%%",
		formatDate(s.ReferenceDate), s.Customers, s.TotalRevenue.StringFixed(2),
		s.AvgOrderValue.StringFixed(2), s.RepeatRate)

	switch n.cfg.Type {
	case "slack":
		return json.Marshal(map[string]string{"text": text})
	case "teams":
		facts := make([]map[string]string, 0, len(res.Profiles))
		for _, p := range res.Profiles {
			facts = append(facts, map[string]string{
				"name":  p.Segment,
				"value": fmt.Sprintf("%d (%.1f%%)", p.Customers, p.Percentage),
			})
		}
		return json.Marshal(map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": "00D4FF",
			"summary":    "RFM segmentation",
			"title":      "RFM segmentation " + formatDate(s.ReferenceDate),
			"text":       text,
			"sections":   []map[string]any{{"facts": facts}},
		})
	case "http":
		profiles := make([]profileRow, len(res.Profiles))
		for i, p := range res.Profiles {
			profiles[i] = toProfileRow(p)
		}
		return json.Marshal(map[string]any{
			"report_type":  "rfm_segmentation",
			"summary":      toSummaryRow(s),
			"segments":     profiles,
			"generated_at": n.now().UTC().Format(time.RFC3339),
		})
	default:
		return nil, fmt.Errorf("unknown webhook type %q", n.cfg.Type)
	}
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &permanentError{fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return &permanentError{fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)}
	}
	return nil
}
