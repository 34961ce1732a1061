package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/x1thexxx-lgtm/hostinv/pkg/inventory"
	"github.com/x1thexxx-lgtm/hostinv/pkg/logging"
	"github.com/x1thexxx-lgtm/hostinv/pkg/remote"
)

// Engine collects the facts of one host over a remote session.
type Engine struct {
	dial        remote.Dialer
	logger      *logging.Logger
	uuidCommand func(device string) string
}

// fingerprinter is implemented by runners that verified a host key.
type fingerprinter interface {
	HostKeyFingerprint() string
}

// EngineOption configures the collector engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for progress and debug lines.
func WithLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithUUIDCommand replaces the per-device UUID lookup command.
func WithUUIDCommand(fn func(device string) string) EngineOption {
	return func(e *Engine) {
		e.uuidCommand = fn
	}
}

// NewEngine creates a collector that opens sessions with dial.
func NewEngine(dial remote.Dialer, opts ...EngineOption) *Engine {
	e := &Engine{
		dial:        dial,
		uuidCommand: UUIDCommand,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CollectHost opens a session to host, runs the fact commands and closes
// the session. It never returns a partial inventory: any error turns the
// whole host into a failure.
func (e *Engine) CollectHost(ctx context.Context, host string) inventory.Result {
	log := e.logger.WithHost(host)
	log.Infof("Connecting to %s...", host)

	sess, err := e.dial(ctx, host)
	if err != nil {
		return inventory.Failed(host, kindOf(err), err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debugf("close session: %v", err)
		}
	}()
	if fp, ok := sess.(fingerprinter); ok {
		log.Debugf("accepted host key %s", fp.HostKeyFingerprint())
	}

	inv, err := e.collectFacts(ctx, sess, log)
	if err != nil {
		return inventory.Failed(host, kindOf(err), err)
	}
	return inventory.Success(host, inventory.NormalizeInventory(inv))
}

func (e *Engine) collectFacts(ctx context.Context, r remote.Runner, log *logging.Logger) (inventory.HostInventory, error) {
	var inv inventory.HostInventory
	var err error

	if inv.Hostname, err = r.Run(ctx, CmdHostname); err != nil {
		return inv, err
	}

	gpuOut, err := r.Run(ctx, CmdGPU)
	if err != nil {
		return inv, err
	}
	if inv.GPU, err = ParseGPUs(gpuOut); err != nil {
		return inv, err
	}
	log.Debugf("%d GPUs", len(inv.GPU))

	if inv.CPU.Count, err = r.Run(ctx, CmdCPUCount); err != nil {
		return inv, err
	}
	if inv.CPU.Type, err = r.Run(ctx, CmdCPUType); err != nil {
		return inv, err
	}

	ram, err := r.Run(ctx, CmdRAM)
	if err != nil {
		return inv, err
	}
	inv.RAM = inventory.RAMFact(ram)

	dfOut, err := r.Run(ctx, CmdStorage)
	if err != nil {
		return inv, err
	}
	if inv.Storage, err = e.collectStorage(ctx, r, ParseStorage(dfOut)); err != nil {
		return inv, err
	}
	log.Debugf("%d storage devices", len(inv.Storage))
	return inv, nil
}

// collectStorage resolves UUIDs one device at a time.
func (e *Engine) collectStorage(ctx context.Context, r remote.Runner, devices []inventory.StorageFact) ([]inventory.StorageFact, error) {
	for i := range devices {
		out, err := r.Run(ctx, e.uuidCommand(devices[i].Device))
		if err != nil {
			return nil, fmt.Errorf("uuid of %s: %w", devices[i].Device, err)
		}
		devices[i].UUID = out
	}
	return devices, nil
}

func kindOf(err error) inventory.ErrorKind {
	var connErr *remote.ConnectionError
	if errors.As(err, &connErr) {
		return inventory.KindConnection
	}
	return inventory.KindCommand
}
