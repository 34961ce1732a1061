package collector

import (
	"fmt"
	"strings"
)

// Remote commands, run in this order for every host.
const (
	CmdHostname = "hostname"
	CmdGPU      = "nvidia-smi --query-gpu=name,memory.total --format=csv,noheader"
	CmdCPUCount = "nproc"
	CmdCPUType  = "lscpu | grep 'Model name' | cut -f 2 -d ':'"
	CmdRAM      = "free -h | awk '/^Mem:/ {print $2}'"
	CmdStorage  = "df -h"
)

// UUIDCommand resolves the filesystem UUID of a block device.
func UUIDCommand(device string) string {
	return fmt.Sprintf("sudo blkid -s UUID -o value %s", shellQuote(device))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
