package api

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// hostResources - загрузка хоста для /status
type hostResources struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryUsed  uint64  `json:"memory_used"`
	MemoryTotal uint64  `json:"memory_total"`
	MemoryPct   float64 `json:"memory_percent"`
	DiskUsed    uint64  `json:"disk_used"`
	DiskTotal   uint64  `json:"disk_total"`
	DiskPct     float64 `json:"disk_percent"`
}

var (
	cpuPercentFn = func(ctx context.Context) ([]float64, error) {
		// интервал 0: загрузка с прошлого вызова, без ожидания
		return cpu.PercentWithContext(ctx, 0, false)
	}
	memoryStatsFn = mem.VirtualMemoryWithContext
	diskUsageFn   = disk.UsageWithContext
	diskPath      = "/"
)

// sampleResources собирает то, что удалось; ошибки отдельных источников пропускаются
func sampleResources(ctx context.Context) hostResources {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var res hostResources
	if pct, err := cpuPercentFn(ctx); err == nil && len(pct) > 0 {
		res.CPUPercent = pct[0]
	}
	if vm, err := memoryStatsFn(ctx); err == nil && vm != nil {
		res.MemoryUsed = vm.Used
		res.MemoryTotal = vm.Total
		res.MemoryPct = vm.UsedPercent
	}
	if du, err := diskUsageFn(ctx, diskPath); err == nil && du != nil {
		res.DiskUsed = du.Used
		res.DiskTotal = du.Total
		res.DiskPct = du.UsedPercent
	}
	return res
}
