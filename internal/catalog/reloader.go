package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/catalog-access/internal/metrics"
	"github.com/robfig/cron/v3"
)

type reloadable interface {
	Reload() error
}

// Reloader re-reads the catalog files on a cron schedule so packages can be
// edited without a restart.
type Reloader struct {
	catalog  reloadable
	logger   *slog.Logger
	schedule cron.Schedule
	spec     string
}

func NewReloader(c reloadable, logger *slog.Logger, spec string) (*Reloader, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse reload schedule %q: %w", spec, err)
	}
	return &Reloader{
		catalog:  c,
		logger:   logger.With("component", "catalog_reloader"),
		schedule: sched,
		spec:     spec,
	}, nil
}

// Start blocks until ctx is done.
func (r *Reloader) Start(ctx context.Context) {
	c := cron.New()
	c.Schedule(r.schedule, cron.FuncJob(r.reload))
	c.Start()

	r.logger.Info("catalog reloader started", "schedule", r.spec)

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("catalog reloader shut down")
}

func (r *Reloader) reload() {
	if err := r.catalog.Reload(); err != nil {
		// previous snapshot stays in place
		r.logger.Error("catalog reload", "error", err)
		metrics.CatalogReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.CatalogReloadsTotal.WithLabelValues("ok").Inc()
	r.logger.Debug("catalog reloaded")
}
