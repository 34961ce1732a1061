package inventory

import "strings"

// NormalizeInventory trims every fact and replaces nil slices with empty
// ones so exported documents never carry null lists.
func NormalizeInventory(inv HostInventory) HostInventory {
	inv.Hostname = strings.TrimSpace(inv.Hostname)
	inv.CPU.Count = strings.TrimSpace(inv.CPU.Count)
	inv.CPU.Type = strings.TrimSpace(inv.CPU.Type)
	inv.RAM = RAMFact(strings.TrimSpace(string(inv.RAM)))
	if inv.GPU == nil {
		inv.GPU = []GPUFact{}
	}
	for i := range inv.GPU {
		inv.GPU[i].Type = strings.TrimSpace(inv.GPU[i].Type)
		inv.GPU[i].VRAM = strings.TrimSpace(inv.GPU[i].VRAM)
	}
	if inv.Storage == nil {
		inv.Storage = []StorageFact{}
	}
	for i := range inv.Storage {
		inv.Storage[i].UUID = strings.TrimSpace(inv.Storage[i].UUID)
	}
	return inv
}
