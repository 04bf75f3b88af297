package workers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const healthcheckPath = "/healthcheck"

// Prober sends health checks to every worker that has not been condemned and feeds the results to a Tracker.
type Prober struct {
	tracker *Tracker
	client  *http.Client
	// Maximum number of health checks in flight at once.
	maxConcurrency int
}

func NewProber(tracker *Tracker, timeout time.Duration, maxConcurrency int) *Prober {
	return &Prober{
		tracker:        tracker,
		client:         &http.Client{Timeout: timeout},
		maxConcurrency: maxConcurrency,
	}
}

// ProbeAll health checks every eligible worker once and waits for all checks to complete.
func (p *Prober) ProbeAll(ctx context.Context) error {
	workers, err := p.tracker.Workers()
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	if p.maxConcurrency > 0 {
		g.SetLimit(p.maxConcurrency)
	}
	for _, worker := range workers {
		if worker.State == Condemned || worker.Address == "" {
			continue
		}
		worker := worker
		g.Go(func() error {
			kind := HealthcheckPassed
			if err := p.probe(ctx, worker); err != nil {
				log.WithError(err).Debugf("Health check of worker %s failed", worker.Id)
				kind = HealthcheckFailed
			}
			err := p.tracker.Ingest(Event{WorkerId: worker.Id, InstanceId: worker.InstanceId, Kind: kind})
			if err != nil {
				log.WithError(err).Warnf("Could not record health check of worker %s", worker.Id)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Prober) probe(ctx context.Context, worker *Worker) error {
	url := strings.TrimSuffix(worker.Address, "/") + healthcheckPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
