package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/x1thexxx-lgtm/hostinv/pkg/collector"
	"github.com/x1thexxx-lgtm/hostinv/pkg/config"
	"github.com/x1thexxx-lgtm/hostinv/pkg/dispatch"
	"github.com/x1thexxx-lgtm/hostinv/pkg/glpi"
	"github.com/x1thexxx-lgtm/hostinv/pkg/inventory"
	"github.com/x1thexxx-lgtm/hostinv/pkg/logging"
	"github.com/x1thexxx-lgtm/hostinv/pkg/metrics"
	"github.com/x1thexxx-lgtm/hostinv/pkg/remote"
	"github.com/x1thexxx-lgtm/hostinv/pkg/sheet"
	"github.com/x1thexxx-lgtm/hostinv/pkg/store"
)

// app wires one inventory run: dispatch, then the spreadsheet, then the
// optional sinks.
type app struct {
	cfg        *config.Config
	log        *logging.Logger
	dispatcher *dispatch.Dispatcher
	glpi       *glpi.Client
	store      *store.Store
	metrics    *metrics.Metrics
	out        io.Writer
}

func newCollector(cfg *config.Config, log *logging.Logger) (dispatch.Collector, error) {
	hostKeys, err := remote.HostKeyCallbackFor(cfg.SSH.HostKeyPolicy, cfg.SSH.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("host key policy: %w", err)
	}
	return collector.NewEngine(remote.NewDialer(cfg.Identity(), hostKeys), collector.WithLogger(log)), nil
}

func newApp(cfg *config.Config, log *logging.Logger, c dispatch.Collector, out io.Writer) (*app, error) {
	a := &app{
		cfg:        cfg,
		log:        log,
		dispatcher: dispatch.New(c, dispatch.WithWorkers(cfg.Workers), dispatch.WithLogger(log)),
		out:        out,
	}
	if cfg.GLPI.BaseURL != "" {
		a.glpi = glpi.NewClient(cfg.GLPI)
	}
	if cfg.Metrics.Textfile != "" {
		a.metrics = metrics.New()
	}
	if cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		a.store = s
	}
	return a, nil
}

// Run collects every configured host once. Only a spreadsheet error is
// returned; host failures and optional sink errors are logged.
func (a *app) Run(ctx context.Context) error {
	start := time.Now()
	hosts := a.cfg.Hosts()
	a.log.Infof("collecting %d hosts with %d workers", len(hosts), a.cfg.Workers)

	report := a.dispatcher.Run(ctx, hosts)
	if n := len(report.Failures()); n > 0 {
		a.log.Warnf("%d of %d hosts could not be collected", n, len(hosts))
	}

	if err := sheet.Write(a.cfg.Output, report); err != nil {
		return fmt.Errorf("write spreadsheet: %w", err)
	}
	fmt.Fprintf(a.out, "Inventory spreadsheet created: %s\n", a.cfg.Output)

	if err := a.export(ctx, report); err != nil {
		a.log.Errorf("export: %v", err)
	}
	fmt.Fprintf(a.out, "Total execution time: %.2f seconds\n", time.Since(start).Seconds())
	return nil
}

func (a *app) export(ctx context.Context, report *inventory.Report) error {
	var result *multierror.Error
	if a.glpi.Enabled() {
		a.glpi.Export(ctx, report, a.log)
	} else {
		a.log.Debugf("GLPI integration disabled")
	}
	if a.store != nil {
		if err := a.store.SaveReport(ctx, report); err != nil {
			result = multierror.Append(result, fmt.Errorf("store: %w", err))
		}
	}
	if a.metrics != nil {
		a.metrics.Record(report)
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			result = multierror.Append(result, fmt.Errorf("metrics: %w", err))
		}
	}
	return result.ErrorOrNil()
}

var errNoStore = errors.New("store.path is not configured")

// ListRuns prints the most recent stored runs, each followed by its
// failed hosts.
func (a *app) ListRuns(ctx context.Context, limit int) error {
	if a.store == nil {
		return errNoStore
	}
	runs, err := a.store.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.out, "No runs stored")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintf(a.out, "Run %s at %s (%.2f seconds): %d hosts, %d failures\n",
			run.ID, run.StartedAt.Format(time.RFC3339), run.FinishedAt.Sub(run.StartedAt).Seconds(), run.Hosts, run.Failures)
		failures, err := a.store.Failures(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failures of run %s: %w", run.ID, err)
		}
		for _, f := range failures {
			fmt.Fprintf(a.out, "  %s [%s] %s\n", f.Host, f.Kind, f.Detail)
		}
	}
	return nil
}

// Last prints the most recent successful inventory stored for host.
func (a *app) Last(ctx context.Context, host string) error {
	if a.store == nil {
		return errNoStore
	}
	snap, err := a.store.LatestInventory(ctx, host)
	if err != nil {
		return fmt.Errorf("latest inventory of %s: %w", host, err)
	}
	if snap == nil {
		return fmt.Errorf("no inventory stored for %s", host)
	}
	body, err := json.MarshalIndent(snap.Inventory, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Host %s collected %s by run %s\n%s\n",
		snap.Host, snap.CollectedAt.Format(time.RFC3339), snap.RunID, body)
	return nil
}

// Close releases the store.
func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
