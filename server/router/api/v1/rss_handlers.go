package v1

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/channelwatch/store"
)

// subscriptionView joins a subscription with its source.
type subscriptionView struct {
	SourceID   int32  `json:"sourceId"`
	Ref        string `json:"ref"`
	Title      string `json:"title,omitempty"`
	ErrorCount int32  `json:"errorCount"`
	CreatedTs  int64  `json:"createdTs"`
}

func (s *APIV1Service) GetSubscriptions(c echo.Context) error {
	if err := s.requireStore(c); err != nil {
		return err
	}
	ctx := c.Request().Context()
	subs, err := s.Store.ListSubscriptions(ctx, userID(c))
	if err != nil {
		return mapServiceErr(c, err)
	}
	views := make([]subscriptionView, 0, len(subs))
	for _, sub := range subs {
		source, err := s.Store.GetSource(ctx, sub.SourceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return mapServiceErr(c, err)
		}
		views = append(views, subscriptionView{
			SourceID:   source.ID,
			Ref:        source.ExternalRef,
			Title:      source.Title,
			ErrorCount: source.ErrorCount,
			CreatedTs:  sub.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"subscriptions": views})
}

// AddSubscription upserts the source and binds the caller to it. Duplicate
// pairs answer {added:false} with 200.
func (s *APIV1Service) AddSubscription(c echo.Context) error {
	if err := s.requireStore(c); err != nil {
		return err
	}
	var body struct {
		Ref   string `json:"ref"`
		Title string `json:"title"`
	}
	if err := c.Bind(&body); err != nil || body.Ref == "" {
		return errJSON(c, http.StatusBadRequest, "ref is required")
	}
	ctx := c.Request().Context()
	source, err := s.Store.CreateSource(ctx, body.Ref, body.Title)
	if err != nil {
		return mapServiceErr(c, err)
	}
	added, err := s.Store.AddSubscription(ctx, userID(c), source.ID)
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"added": added, "sourceId": source.ID})
}

func (s *APIV1Service) DeleteSubscription(c echo.Context) error {
	if err := s.requireStore(c); err != nil {
		return err
	}
	var body struct {
		SourceID int32 `json:"sourceId"`
	}
	if err := c.Bind(&body); err != nil || body.SourceID == 0 {
		return errJSON(c, http.StatusBadRequest, "sourceId is required")
	}
	if err := s.Store.DeleteSubscription(c.Request().Context(), userID(c), body.SourceID); err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"deleted": true})
}

// feedProbeTimeout bounds the validation fetch.
const feedProbeTimeout = 10 * time.Second

// ValidateFeed probes a feed URL for reachability.
func (s *APIV1Service) ValidateFeed(c echo.Context) error {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.Bind(&body); err != nil || body.URL == "" {
		return errJSON(c, http.StatusBadRequest, "url is required")
	}
	parsed, err := url.Parse(body.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return errJSON(c, http.StatusBadRequest, "invalid url")
	}

	client := &http.Client{Timeout: feedProbeTimeout}
	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, body.URL, nil)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid url")
	}
	resp, err := client.Do(req)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
	}
	defer resp.Body.Close()

	valid := resp.StatusCode >= 200 && resp.StatusCode < 300
	out := map[string]any{"valid": valid, "status": resp.StatusCode}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		out["contentType"] = ct
	}
	return c.JSON(http.StatusOK, out)
}
