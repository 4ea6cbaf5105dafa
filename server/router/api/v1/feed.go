package v1

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"
)

const feedTitleRunes = 80

// GetFeed renders the caller's monitor history as an Atom feed.
func (s *APIV1Service) GetFeed(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	uid := userID(c)
	history, err := s.Monitor.GetHistory(c.Request().Context(), uid, 0)
	if err != nil {
		return mapServiceErr(c, err)
	}

	feed := &feeds.Feed{
		Title:       "channelwatch history",
		Link:        &feeds.Link{Href: c.Request().URL.String()},
		Description: "Captured channel messages",
		Updated:     time.Now().UTC(),
	}
	for _, row := range history {
		title := row.Message
		if runes := []rune(title); len(runes) > feedTitleRunes {
			title = string(runes[:feedTitleRunes]) + "..."
		}
		content := row.Message
		if row.AISummary != nil && *row.AISummary != "" {
			content += "\n\n" + *row.AISummary
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:      fmt.Sprintf("channelwatch:%d:%d", uid, row.ID),
			Title:   title,
			Author:  &feeds.Author{Name: row.Source},
			Content: content,
			Created: time.Unix(row.CreatedTs, 0).UTC(),
		})
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.Blob(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(atom))
}
