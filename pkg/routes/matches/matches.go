package matches

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/tansy/pkg/matching"
)

// Register registers match output routes
func Register(g *echo.Group) {
	g.GET("", ListMatches)
	g.GET("/stats", GetStats)
	g.GET("/:left_id", GetMatch)
}

// ListMatches returns the current output rows from the in-memory engine
func ListMatches(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 1000")
		}
		limit = parsed
	}

	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		offset = parsed
	}

	_, engine, err := ectoinject.GetContext[*matching.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rows := engine.Snapshot()
	if offset >= len(rows) {
		rows = rows[:0]
	} else {
		rows = rows[offset:]
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	return c.JSON(http.StatusOK, rows)
}

// GetMatch returns the output row for one left record
func GetMatch(c echo.Context) error {
	ctx := c.Request().Context()

	leftID := c.Param("left_id")
	if leftID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "left_id is required")
	}

	_, engine, err := ectoinject.GetContext[*matching.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	row, ok := engine.Row(leftID)
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "no output row for left record")
	}

	return c.JSON(http.StatusOK, row)
}

// GetStats returns engine counters
func GetStats(c echo.Context) error {
	ctx := c.Request().Context()

	_, engine, err := ectoinject.GetContext[*matching.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	return c.JSON(http.StatusOK, engine.Stats())
}
