package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/channelwatch/ai/prompts"
	"github.com/hrygo/channelwatch/ai/providers"
	"github.com/hrygo/channelwatch/store"
)

// mapServiceErr translates domain error kinds onto HTTP statuses.
func mapServiceErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errJSON(c, http.StatusNotFound, "not found")
	case errors.Is(err, providers.ErrNotConfigured):
		return errJSON(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, prompts.ErrMissingField), errors.Is(err, prompts.ErrUnknownJob):
		return errJSON(c, http.StatusBadRequest, err.Error())
	default:
		return errJSON(c, http.StatusInternalServerError, err.Error())
	}
}

func chatIDParam(c echo.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id")
	}
	return int32(id), nil
}

func (s *APIV1Service) GetAISettings(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	settings, err := s.AI.GetSettings(c.Request().Context(), userID(c))
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"provider": settings.Provider,
		"model":    settings.Model,
	})
}

func (s *APIV1Service) UpdateAISettings(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	var body struct {
		Provider string `json:"provider"`
		Model    string `json:"model"`
	}
	if err := c.Bind(&body); err != nil || body.Provider == "" {
		return errJSON(c, http.StatusBadRequest, "provider is required")
	}
	settings, err := s.AI.UpdateSettings(c.Request().Context(), userID(c), body.Provider, body.Model)
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"provider": settings.Provider,
		"model":    settings.Model,
	})
}

func (s *APIV1Service) ListProviders(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"providers": s.AI.ListProviders()})
}

func (s *APIV1Service) GetModels(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	provider := c.QueryParam("provider")
	if provider == "" {
		return errJSON(c, http.StatusBadRequest, "provider query parameter is required")
	}
	models, err := s.AI.GetModels(c.Request().Context(), provider)
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"models": models})
}

func (s *APIV1Service) Chat(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&body); err != nil || body.Message == "" {
		return errJSON(c, http.StatusBadRequest, "message is required")
	}
	uid := userID(c)
	resp, err := s.AI.Chat(c.Request().Context(), uid, body.Message)
	if err != nil {
		return mapServiceErr(c, err)
	}
	settings, _ := s.AI.GetSettings(c.Request().Context(), uid)
	out := map[string]any{
		"content":  resp.Content,
		"thinking": resp.Thinking,
		"chatId":   resp.ChatID,
	}
	if settings != nil {
		out["provider"] = settings.Provider
		out["model"] = settings.Model
	}
	return c.JSON(http.StatusOK, out)
}

// ChatStream answers with SSE frames: meta, chunk per token, then done or
// error.
func (s *APIV1Service) ChatStream(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&body); err != nil || body.Message == "" {
		return errJSON(c, http.StatusBadRequest, "message is required")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	uid := userID(c)
	settings, _ := s.AI.GetSettings(c.Request().Context(), uid)
	meta := map[string]any{}
	if settings != nil {
		meta["provider"] = settings.Provider
		meta["model"] = settings.Model
	}
	writeSSE(resp, "meta", meta)

	result, err := s.AI.ChatStream(c.Request().Context(), uid, body.Message, func(chunk string) {
		writeSSE(resp, "chunk", map[string]string{"token": chunk})
	})
	if err != nil {
		writeSSE(resp, "error", map[string]string{"error": err.Error()})
		return nil
	}
	writeSSE(resp, "done", map[string]any{"content": result.Content, "chatId": result.ChatID})
	return nil
}

func writeSSE(resp *echo.Response, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event, raw)
	resp.Flush()
}

func (s *APIV1Service) jobAliasHandler(jobID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return s.runJob(c, jobID)
	}
}

func (s *APIV1Service) RunJob(c echo.Context) error {
	return s.runJob(c, c.Param("id"))
}

func (s *APIV1Service) runJob(c echo.Context, jobID string) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	payload := map[string]any{}
	if err := c.Bind(&payload); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid payload")
	}
	reply, err := s.AI.RunJob(c.Request().Context(), jobID, payload, nil)
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"content":  reply.Content,
		"thinking": reply.Thinking,
	})
}

func (s *APIV1Service) GetChats(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	chats, err := s.AI.GetChats(c.Request().Context(), userID(c))
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"chats": chats})
}

func (s *APIV1Service) CreateChat(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	chat, err := s.AI.CreateChat(c.Request().Context(), userID(c))
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, chat)
}

func (s *APIV1Service) GetChat(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	chatID, err := chatIDParam(c)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, err.Error())
	}
	msgs, err := s.AI.GetMessages(c.Request().Context(), userID(c), chatID)
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": msgs})
}

func (s *APIV1Service) SwitchChat(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	chatID, err := chatIDParam(c)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, err.Error())
	}
	if err := s.AI.SwitchChat(c.Request().Context(), userID(c), chatID); err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"active": true})
}

func (s *APIV1Service) DeleteChat(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	chatID, err := chatIDParam(c)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, err.Error())
	}
	if err := s.AI.DeleteChat(c.Request().Context(), userID(c), chatID); err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"deleted": true})
}

func (s *APIV1Service) ClearChat(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	chatID, err := chatIDParam(c)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, err.Error())
	}
	if err := s.AI.ClearChat(c.Request().Context(), userID(c), chatID); err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"cleared": true})
}

func (s *APIV1Service) ExportChat(c echo.Context) error {
	if err := s.requireAI(c); err != nil {
		return err
	}
	chatID, err := chatIDParam(c)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, err.Error())
	}
	export, err := s.AI.ExportChat(c.Request().Context(), userID(c), chatID)
	if err != nil {
		return mapServiceErr(c, err)
	}
	return c.JSON(http.StatusOK, export)
}
