package controllers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/duka-backend/api/responses"
	"github.com/angelmondragon/duka-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/queue"
)

const readinessTimeout = 3 * time.Second

// Pinger is any dependency with a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type poolStats interface {
	Stats() sql.DBStats
}

type queueStats interface {
	Stats(ctx context.Context) (map[string]queue.Stats, error)
}

// ReadinessDeps are checked on every readiness check. Nil entries are skipped.
type ReadinessDeps struct {
	DB     Pinger
	Redis  Pinger
	GCS    Pinger
	Queues queueStats
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Duka-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency concurrently and reports queue depths.
func HealthReady(cfg *config.Config, deps ReadinessDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Duka-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		for name, dep := range map[string]Pinger{"database": deps.DB, "redis": deps.Redis, "gcs": deps.GCS} {
			if dep == nil {
				continue
			}
			g.Go(func() error {
				if err := dep.Ping(gctx); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable")
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body := map[string]any{"status": "ready"}
		if pool, ok := deps.DB.(poolStats); ok {
			st := pool.Stats()
			body["dbPool"] = map[string]any{
				"open":      st.OpenConnections,
				"inUse":     st.InUse,
				"idle":      st.Idle,
				"waitCount": st.WaitCount,
			}
		}
		if deps.Queues != nil {
			stats, err := deps.Queues.Stats(ctx)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue stats unavailable"))
				return
			}
			body["queues"] = stats
		}
		responses.WriteSuccess(w, body)
	}
}
