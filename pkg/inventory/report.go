package inventory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Report is the aggregate of one collection run, keyed by host
// identifier. Successful hosts live in the inventory map that sinks
// export; failed hosts keep an explicit Failure marker instead. A later
// outcome for the same identifier replaces the earlier one.
type Report struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time

	mu          sync.Mutex
	inventories map[string]HostInventory
	failures    map[string]Failure
	order       []string
}

// NewReport starts an empty report with a fresh run ID.
func NewReport() *Report {
	return &Report{
		ID:          uuid.New(),
		StartedAt:   time.Now(),
		inventories: map[string]HostInventory{},
		failures:    map[string]Failure{},
	}
}

// Add records one host outcome. Safe for concurrent use.
func (r *Report) Add(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, res.Host)
	if res.Inventory != nil {
		delete(r.failures, res.Host)
		r.inventories[res.Host] = *res.Inventory
		return
	}
	delete(r.inventories, res.Host)
	f := Failure{Host: res.Host}
	if res.Failure != nil {
		f = *res.Failure
	}
	r.failures[res.Host] = f
}

// Finish stamps the end of the run.
func (r *Report) Finish() {
	r.mu.Lock()
	r.FinishedAt = time.Now()
	r.mu.Unlock()
}

// Duration is the wall time between NewReport and Finish.
func (r *Report) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Inventories returns a copy of the successful hosts.
func (r *Report) Inventories() map[string]HostInventory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]HostInventory, len(r.inventories))
	for k, v := range r.inventories {
		out[k] = v
	}
	return out
}

// Failures returns a copy of the failure markers.
func (r *Report) Failures() map[string]Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Failure, len(r.failures))
	for k, v := range r.failures {
		out[k] = v
	}
	return out
}

// Inventory looks up one successful host.
func (r *Report) Inventory(host string) (HostInventory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.inventories[host]
	return inv, ok
}

// Failure looks up one failed host.
func (r *Report) Failure(host string) (Failure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.failures[host]
	return f, ok
}

// Outcomes is the number of results added, duplicates included.
func (r *Report) Outcomes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// CompletionOrder lists hosts in the order their outcomes arrived.
func (r *Report) CompletionOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Hosts returns the successful host identifiers, sorted.
func (r *Report) Hosts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	hosts := make([]string, 0, len(r.inventories))
	for h := range r.inventories {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
