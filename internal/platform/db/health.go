package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// poolSnapshot is the pool state reported on /health/db.
type poolSnapshot struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

func snapshot(pool *pgxpool.Pool) poolSnapshot {
	stat := pool.Stat()
	return poolSnapshot{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}
}

// HealthHandler reports database reachability plus a pool snapshot. The ping
// runs under its own deadline so a wedged database cannot hang the probe.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unavailable",
				"error":  err.Error(),
				"pool":   snapshot(pool),
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "ok",
			"pool":   snapshot(pool),
		})
	}
}
