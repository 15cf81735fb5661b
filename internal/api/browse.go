package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shelfarr/shelfbrowse/internal/catalog"
	"github.com/shelfarr/shelfbrowse/internal/logger"
)

// TopicRequest selects a topic
type TopicRequest struct {
	Topic catalog.Topic `json:"topic"`
}

// PageRequest selects a page of the current topic
type PageRequest struct {
	Page int `json:"page"`
}

// getTopics returns the topic selector entries
func (s *Server) getTopics(c echo.Context) error {
	view := catalog.NewView(s.catalog.Snapshot(), s.catalog.Topics())
	return c.JSON(http.StatusOK, view.Topics)
}

// getCatalog returns the rendered view; ?wait=1 blocks until the latest fetch settles
func (s *Server) getCatalog(c echo.Context) error {
	snap := s.catalog.Snapshot()
	if c.QueryParam("wait") != "" {
		ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
		defer cancel()
		defer logger.Track(ctx, "catalog wait")()
		// on timeout the loading view is returned as-is
		snap, _ = s.catalog.Wait(ctx)
	}
	return c.JSON(http.StatusOK, s.Render(snap))
}

// getSnapshot returns the raw controller snapshot
func (s *Server) getSnapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, s.catalog.Snapshot())
}

// setTopic switches topic; the fetch continues in the background
func (s *Server) setTopic(c echo.Context) error {
	var req TopicRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := s.catalog.SetTopic(req.Topic); err != nil {
		return s.mutationError(c, err)
	}

	logger.For(c.Request().Context()).WithField("topic", req.Topic).Debug("Topic changed")
	return c.JSON(http.StatusAccepted, s.Render(s.catalog.Snapshot()))
}

// setPage changes page; the fetch continues in the background
func (s *Server) setPage(c echo.Context) error {
	var req PageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := s.catalog.SetPage(req.Page); err != nil {
		return s.mutationError(c, err)
	}

	logger.For(c.Request().Context()).WithField("page", req.Page).Debug("Page changed")
	return c.JSON(http.StatusAccepted, s.Render(s.catalog.Snapshot()))
}

func (s *Server) mutationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, catalog.ErrUnknownTopic), errors.Is(err, catalog.ErrInvalidPage):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, catalog.ErrClosed):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// handleCommand applies navigation commands received over the websocket
func (s *Server) handleCommand(msgType string, data json.RawMessage) error {
	switch msgType {
	case "setTopic":
		var req TopicRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("invalid setTopic payload: %w", err)
		}
		return s.catalog.SetTopic(req.Topic)
	case "setPage":
		var req PageRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("invalid setPage payload: %w", err)
		}
		return s.catalog.SetPage(req.Page)
	default:
		return fmt.Errorf("unknown command %q", msgType)
	}
}
