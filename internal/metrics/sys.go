package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SysHealth represents real-time system metrics.
type SysHealth struct {
	AllocMB      uint64  `json:"alloc_mb"`
	TotalAllocMB uint64  `json:"total_alloc_mb"`
	SysMB        uint64  `json:"sys_mb"`
	NumGC        uint32  `json:"num_gc"`
	Goroutines   int     `json:"goroutines"`
	DataDiskSize string  `json:"data_disk_size"`
	HostMemoryMB uint64  `json:"host_memory_mb"`
	HostUsedMB   uint64  `json:"host_used_mb"`
	HostCPU      float64 `json:"host_cpu_percent"`
	DiskTotalMB  uint64  `json:"disk_total_mb"`
	DiskUsedMB   uint64  `json:"disk_used_mb"`
}

// GetSysHealth collects real-time health data. Host figures are left at zero when
// the platform does not expose them.
func GetSysHealth(dataPath string) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	h := SysHealth{
		AllocMB:      m.Alloc / 1024 / 1024,
		TotalAllocMB: m.TotalAlloc / 1024 / 1024,
		SysMB:        m.Sys / 1024 / 1024,
		NumGC:        m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
		DataDiskSize: calculateDirSize(dataPath),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		h.HostMemoryMB = vm.Total / 1024 / 1024
		h.HostUsedMB = (vm.Total - vm.Available) / 1024 / 1024
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		h.HostCPU = percents[0]
	}
	usage, err := disk.Usage(dataPath)
	if err != nil {
		usage, err = disk.Usage("/")
	}
	if err == nil {
		h.DiskTotalMB = usage.Total / 1024 / 1024
		h.DiskUsedMB = usage.Used / 1024 / 1024
	}
	return h
}

func calculateDirSize(path string) string {
	var size int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
