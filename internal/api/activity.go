package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shelfarr/shelfbrowse/internal/db"
)

// getActivity returns recent fetch cycles, newest first
func (s *Server) getActivity(c echo.Context) error {
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	if s.activity == nil {
		return c.JSON(http.StatusOK, []db.FetchCycle{})
	}

	cycles, err := s.activity.Recent(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load activity"})
	}
	if cycles == nil {
		cycles = []db.FetchCycle{}
	}

	return c.JSON(http.StatusOK, cycles)
}
