package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/channelwatch/monitor"
	"github.com/hrygo/channelwatch/store"
)

func (s *APIV1Service) MonitorStatus(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Monitor.GetStatus())
}

func (s *APIV1Service) MonitorStart(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	if err := s.Monitor.Start(c.Request().Context()); err != nil {
		if errors.Is(err, monitor.ErrNoSourcesResolved) {
			return errJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		return errJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"running": true})
}

func (s *APIV1Service) MonitorStop(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	if err := s.Monitor.Stop(); err != nil {
		if errors.Is(err, monitor.ErrNotRunning) {
			return errJSON(c, http.StatusBadRequest, err.Error())
		}
		return errJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"running": false})
}

func (s *APIV1Service) GetSources(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"sources": s.Monitor.GetSources()})
}

func (s *APIV1Service) AddSource(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	var body struct {
		Ref string `json:"ref"`
	}
	if err := c.Bind(&body); err != nil || body.Ref == "" {
		return errJSON(c, http.StatusBadRequest, "ref is required")
	}
	if err := s.Monitor.AddSource(c.Request().Context(), body.Ref); err != nil {
		return errJSON(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"added": true})
}

func (s *APIV1Service) DeleteSource(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	var body struct {
		Ref string `json:"ref"`
	}
	if err := c.Bind(&body); err != nil || body.Ref == "" {
		return errJSON(c, http.StatusBadRequest, "ref is required")
	}
	if err := s.Monitor.DeleteSource(body.Ref); err != nil {
		return errJSON(c, http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"deleted": true})
}

func (s *APIV1Service) EnableSource(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	if err := s.Monitor.EnableSource(c.Param("id")); err != nil {
		return errJSON(c, http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"enabled": true})
}

func (s *APIV1Service) DisableSource(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	if err := s.Monitor.DisableSource(c.Param("id")); err != nil {
		return errJSON(c, http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"disabled": true})
}

func (s *APIV1Service) GetFilters(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	filters, err := s.Monitor.GetFilters(c.Request().Context(), userID(c))
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, filters)
}

func (s *APIV1Service) UpdateFilters(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	filters := store.DefaultMonitorFilters()
	if err := c.Bind(filters); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid filter document")
	}
	updated, err := s.Monitor.UpdateFilters(c.Request().Context(), userID(c), filters)
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *APIV1Service) GetHistory(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return errJSON(c, http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}
	history, err := s.Monitor.GetHistory(c.Request().Context(), userID(c), limit)
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"history": history})
}

func (s *APIV1Service) SetTarget(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	var body struct {
		Ref string `json:"ref"`
	}
	if err := c.Bind(&body); err != nil || body.Ref == "" {
		return errJSON(c, http.StatusBadRequest, "ref is required")
	}
	if err := s.Monitor.SetTargetChannel(body.Ref); err != nil {
		return errJSON(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"target": body.Ref})
}

func (s *APIV1Service) ResetTarget(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	s.Monitor.ResetTargetChannel()
	return c.JSON(http.StatusOK, map[string]string{"target": s.Profile.TargetChannel})
}

func (s *APIV1Service) SetForwarding(c echo.Context) error {
	if err := s.requireMonitor(c); err != nil {
		return err
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil || body.Enabled == nil {
		return errJSON(c, http.StatusBadRequest, "enabled is required")
	}
	s.Monitor.SetForwarding(*body.Enabled)
	return c.JSON(http.StatusOK, map[string]bool{"forwarding": *body.Enabled})
}
