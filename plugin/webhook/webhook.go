// Package webhook delivers forwarded monitor events to an external endpoint.
package webhook

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/channelwatch/monitor"
)

// timeout is the timeout for webhook request. Default to 30 seconds.
var timeout = 30 * time.Second

// Dispatcher posts events to one configured URL.
type Dispatcher struct {
	url    string
	client *http.Client
}

// NewDispatcher returns nil when no URL is configured, which disables the
// webhook path entirely.
func NewDispatcher(url string) *Dispatcher {
	if url == "" {
		return nil
	}
	return &Dispatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type requestPayload struct {
	Event *monitor.Event `json:"event"`
	URL   string         `json:"url"`
}

// Post delivers one event and checks for a 2xx answer.
func (d *Dispatcher) Post(ev *monitor.Event) error {
	body, err := json.Marshal(&requestPayload{Event: ev, URL: d.url})
	if err != nil {
		return errors.Wrapf(err, "failed to marshal webhook request to %s", d.url)
	}

	req, err := http.NewRequest(http.MethodPost, d.url, bytes.NewBuffer(body))
	if err != nil {
		return errors.Wrapf(err, "failed to construct webhook request to %s", d.url)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to post webhook to %s", d.url)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrapf(err, "failed to read webhook response from %s", d.url)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("failed to post webhook %s, status code: %d, response body: %s", d.url, resp.StatusCode, b)
	}
	return nil
}

// PostAsync is fire-and-forget; delivery failure never reaches the pipeline.
// Safe on a nil dispatcher so a disabled webhook can never take the pipeline
// down.
func (d *Dispatcher) PostAsync(ev *monitor.Event) {
	if d == nil {
		return
	}
	go func() {
		if err := d.Post(ev); err != nil {
			slog.Warn("failed to dispatch webhook asynchronously",
				slog.String("url", d.url),
				slog.String("eventId", ev.ID),
				slog.Any("err", err))
		}
	}()
}
