package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saiMhatre/stocky/internal/domain"
)

// fail maps domain errors onto HTTP statuses. Anything unexpected is logged
// and reported as a 500 without details.
func (a *App) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoHistoricalPrice):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrPriceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		a.Logger.WithField("path", c.FullPath()).Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

// parseTime accepts RFC3339 timestamps and plain YYYY-MM-DD dates (UTC
// midnight).
func parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad time %q", domain.ErrInvalidInput, v)
	}
	return t.UTC(), nil
}

// queryTime reads an optional time query parameter.
func queryTime(c *gin.Context, key string, def time.Time) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return parseTime(v)
}

// actionType accepts the upper-case type names plus DELIST for delisting.
func actionType(s string) domain.ActionType {
	t := domain.ActionType(strings.ToUpper(strings.TrimSpace(s)))
	if t == "DELIST" {
		return domain.ActionDelisting
	}
	return t
}
