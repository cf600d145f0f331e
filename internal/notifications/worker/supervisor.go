package worker

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/duka-backend/pkg/logger"
)

type runner interface {
	Run(ctx context.Context) error
}

// Supervisor runs every channel pool side by side. Pools share nothing, so a
// slow provider on one channel never holds up another.
type Supervisor struct {
	pools []runner
	logg  *logger.Logger
}

func NewSupervisor(logg *logger.Logger, pools ...*Pool) (*Supervisor, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	s := &Supervisor{logg: logg}
	for _, p := range pools {
		if p != nil {
			s.pools = append(s.pools, p)
		}
	}
	if len(s.pools) == 0 {
		return nil, errors.New("at least one pool required")
	}
	return s, nil
}

// Run blocks until ctx is cancelled or a pool fails.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithField(ctx, "pools", len(s.pools)), "notification supervisor started")
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.pools {
		p := p
		g.Go(func() error { return p.Run(gctx) })
	}
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "notification supervisor stopped", err)
		return err
	}
	return nil
}
