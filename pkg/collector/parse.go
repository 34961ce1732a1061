package collector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/x1thexxx-lgtm/hostinv/pkg/inventory"
)

// ParseError means a command printed something the parser could not
// interpret.
type ParseError struct {
	Command string
	Line    string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s output %q: %s", e.Command, e.Line, e.Reason)
}

// ParseGPUs turns "name, memory" CSV lines into GPU facts. Blank lines are
// skipped; any line without exactly two fields is an error.
func ParseGPUs(out string) ([]inventory.GPUFact, error) {
	var gpus []inventory.GPUFact
	if out == "" {
		return gpus, nil
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			return nil, &ParseError{
				Command: CmdGPU,
				Line:    line,
				Reason:  fmt.Sprintf("expected 2 fields, got %d", len(fields)),
			}
		}
		gpus = append(gpus, inventory.GPUFact{
			Type: strings.TrimSpace(fields[0]),
			VRAM: strings.TrimSpace(fields[1]),
		})
	}
	return gpus, nil
}

// ParseStorage reads `df -h` output and keeps the rows accepted by
// KeepStorageRow. The header line is skipped, as are rows with fewer
// than six columns. UUIDs are filled in later, one lookup per row.
func ParseStorage(out string) []inventory.StorageFact {
	var devices []inventory.StorageFact
	lines := strings.Split(out, "\n")
	for _, line := range lines[1:] {
		parts := strings.Fields(line)
		if len(parts) < 6 {
			continue
		}
		device, size, available, mount := parts[0], parts[1], parts[3], parts[5]
		if !KeepStorageRow(device, mount, size) {
			continue
		}
		devices = append(devices, inventory.StorageFact{
			Device:    device,
			Mount:     mount,
			Total:     size,
			Available: available,
		})
	}
	return devices
}

var partitionPattern = regexp.MustCompile(`^/dev/.*p\d+$`)

var smallSizePrefixes = []string{"1G", "2G", "3G", "4G", "5G"}

// KeepStorageRow applies the storage filter to one df row. The size
// checks are string prefix/suffix tests on df's human readable column,
// not numeric comparisons: "15G" and "1.0G" are kept, "3G" is not.
func KeepStorageRow(device, mount, size string) bool {
	if !strings.HasPrefix(device, "/dev/") {
		return false
	}
	if strings.HasPrefix(device, "/dev/loop") {
		return false
	}
	if partitionPattern.MatchString(device) {
		return false
	}
	if strings.HasPrefix(mount, "/snap/") || strings.HasPrefix(mount, "/boot/") {
		return false
	}
	if !strings.HasSuffix(size, "T") && !strings.HasSuffix(size, "G") {
		return false
	}
	for _, prefix := range smallSizePrefixes {
		if strings.HasPrefix(size, prefix) {
			return false
		}
	}
	return true
}
