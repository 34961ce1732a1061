package dispatch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/x1thexxx-lgtm/hostinv/pkg/inventory"
	"github.com/x1thexxx-lgtm/hostinv/pkg/logging"
)

// DefaultWorkers is the number of hosts collected concurrently.
const DefaultWorkers = 10

// Collector gathers the facts of a single host.
type Collector interface {
	CollectHost(ctx context.Context, host string) inventory.Result
}

// Dispatcher runs a Collector over a host list with bounded parallelism.
type Dispatcher struct {
	collector Collector
	workers   int
	logger    *logging.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the pool size. Values below one select DefaultWorkers.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		d.workers = n
	}
}

// WithLogger sets the logger used for per-host outcome lines.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// New constructs a dispatcher.
func New(c Collector, opts ...Option) *Dispatcher {
	d := &Dispatcher{collector: c, workers: DefaultWorkers}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers <= 0 {
		d.workers = DefaultWorkers
	}
	return d
}

// Run collects every host once and returns when all of them have an
// outcome. Hosts are submitted in list order; outcomes are recorded in
// completion order. One host failing never affects another, and Run
// itself never fails.
func (d *Dispatcher) Run(ctx context.Context, hosts []string) *inventory.Report {
	report := inventory.NewReport()
	d.logger.Debugf("run %s: %d hosts, %d workers", report.ID, len(hosts), d.workers)

	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, host := range hosts {
		host := host
		g.Go(func() error {
			res := d.collect(ctx, host)
			report.Add(res)
			d.logOutcome(res)
			return nil
		})
	}
	_ = g.Wait()

	report.Finish()
	return report
}

func (d *Dispatcher) collect(ctx context.Context, host string) (res inventory.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = inventory.Failed(host, inventory.KindCommand, fmt.Errorf("collector panic: %v", r))
		}
	}()
	res = d.collector.CollectHost(ctx, host)
	res.Host = host
	if res.Inventory == nil && res.Failure == nil {
		res = inventory.Failed(host, inventory.KindCommand, errors.New("collector returned no outcome"))
	}
	return res
}

func (d *Dispatcher) logOutcome(res inventory.Result) {
	log := d.logger.WithHost(res.Host)
	if res.Failure != nil {
		log.Errorf("Error collecting data from %s: %s", res.Host, res.Failure.Detail)
		return
	}
	log.Debugf("collected %s (%d GPUs, %d storage devices)", res.Host, len(res.Inventory.GPU), len(res.Inventory.Storage))
}
