package utils

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// HostResources is a snapshot of what the machine can spare for a browser.
type HostResources struct {
	LogicalCores  int
	AvailableMB   uint64
	MemoryUnknown bool
}

// CheckHostResources logs the logical core count and available memory and
// warns when less than minFreeMB is available.
func CheckHostResources(log *zap.SugaredLogger, minFreeMB uint64) HostResources {
	var res HostResources

	cores, err := cpu.Counts(true)
	if err != nil {
		log.Warnw("Could not detect CPU cores", "error", err)
	}
	res.LogicalCores = cores

	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Warnw("Could not read memory statistics", "error", err)
		res.MemoryUnknown = true
		return res
	}
	res.AvailableMB = vm.Available / (1024 * 1024)

	log.Infow("Host resources", "logical_cores", res.LogicalCores, "available_mb", res.AvailableMB)
	if minFreeMB > 0 && res.AvailableMB < minFreeMB {
		log.Warnw("Available memory is below the configured minimum; page loads may time out",
			"available_mb", res.AvailableMB, "min_free_memory_mb", minFreeMB)
	}
	return res
}
