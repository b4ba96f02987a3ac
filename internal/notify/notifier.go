// Package notify delivers analysis results to a Feishu channel via the
// incoming-webhook API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/firstissue/scout/internal/log"
	"github.com/firstissue/scout/internal/model"
	"github.com/firstissue/scout/internal/retry"
)

// ErrDeliveryFailed marks a webhook push that failed after retries. The
// issue stays un-marked-seen and is re-attempted on the next run.
var ErrDeliveryFailed = errors.New("delivery failed")

// webhookAck is Feishu's webhook response body; code 0 is the positive ack.
type webhookAck struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Notifier posts interactive cards to one webhook URL.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	retry      retry.Policy
}

// New creates a Notifier. timeout bounds each individual HTTP attempt.
func New(webhookURL string, timeout time.Duration, policy retry.Policy) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		retry:      policy,
	}
}

// Push formats and delivers one issue's analysis. Exactly one logical
// delivery per invocation: transport retries are internal. On success the
// receipt carries the server-acknowledged time used for the dedup record.
func (n *Notifier) Push(ctx context.Context, issue model.Issue, analysis *model.Analysis) (model.DeliveryReceipt, error) {
	card := BuildIssueCard(issue, analysis)
	serverTime, err := n.send(ctx, card)
	if err != nil {
		return model.DeliveryReceipt{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	log.Info("delivered issue", "key", issue.DedupKey())
	return model.DeliveryReceipt{Success: true, ServerTime: serverTime}, nil
}

// PushDigest delivers the per-run summary card.
func (n *Notifier) PushDigest(ctx context.Context, summary *model.RunSummary) error {
	if _, err := n.send(ctx, BuildDigestCard(summary)); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, card map[string]any) (time.Time, error) {
	payload, err := json.Marshal(map[string]any{
		"msg_type": "interactive",
		"card":     card,
	})
	if err != nil {
		return time.Time{}, err
	}

	var serverTime time.Time
	err = n.retry.Do(ctx, "feishu webhook", func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
		if reqErr != nil {
			return retry.Permanent(reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := n.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("webhook status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Permanent(fmt.Errorf("webhook status %d: %s", resp.StatusCode, body))
		}

		var ack webhookAck
		if err := json.Unmarshal(body, &ack); err != nil {
			return retry.Permanent(fmt.Errorf("malformed webhook ack: %v", err))
		}
		if ack.Code != 0 {
			return retry.Permanent(fmt.Errorf("webhook rejected: code %d msg %q", ack.Code, ack.Msg))
		}

		serverTime = ackTime(resp)
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	return serverTime, nil
}

// ackTime prefers the server's Date header over local time so the dedup
// record reflects when the server acknowledged the push.
func ackTime(resp *http.Response) time.Time {
	if d := resp.Header.Get("Date"); d != "" {
		if t, err := http.ParseTime(d); err == nil {
			return t
		}
	}
	return time.Now()
}
