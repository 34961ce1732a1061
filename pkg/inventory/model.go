package inventory

// GPUFact is one line of the GPU query.
type GPUFact struct {
	Type string `json:"type"`
	VRAM string `json:"vram"`
}

// CPUFact describes the processor. Either field may be empty when the
// remote query printed nothing.
type CPUFact struct {
	Count string `json:"count"`
	Type  string `json:"type"`
}

// RAMFact is the human readable total memory, e.g. "64G".
type RAMFact string

// StorageFact is one block device that passed the storage filter.
type StorageFact struct {
	Device    string `json:"device"`
	Mount     string `json:"mount"`
	UUID      string `json:"uuid"`
	Total     string `json:"total"`
	Available string `json:"available"`
}

// HostInventory describes normalized host facts.
type HostInventory struct {
	Hostname string        `json:"hostname"`
	GPU      []GPUFact     `json:"gpu"`
	CPU      CPUFact       `json:"cpu"`
	RAM      RAMFact       `json:"ram"`
	Storage  []StorageFact `json:"storage"`
}

// ErrorKind classifies a host failure.
type ErrorKind string

const (
	// KindConnection means the session or a command channel could not be opened.
	KindConnection ErrorKind = "connection"
	// KindCommand means a command failed in transit or its output could not be parsed.
	KindCommand ErrorKind = "command"
)

// Failure is the explicit marker recorded for a host that could not be
// collected.
type Failure struct {
	Host   string    `json:"host"`
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
}

// Result is the outcome of one host collection. Exactly one of
// Inventory and Failure is set.
type Result struct {
	Host      string
	Inventory *HostInventory
	Failure   *Failure
}

// Success builds a successful result.
func Success(host string, inv HostInventory) Result {
	return Result{Host: host, Inventory: &inv}
}

// Failed builds a failed result.
func Failed(host string, kind ErrorKind, err error) Result {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return Result{Host: host, Failure: &Failure{Host: host, Kind: kind, Detail: detail}}
}

// OK reports whether the host was collected.
func (r Result) OK() bool {
	return r.Inventory != nil
}
