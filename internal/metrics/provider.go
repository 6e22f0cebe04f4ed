package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is one sampling window of host activity.
type Snapshot struct {
	CPUUsage        float64
	Processes       int
	ContextSwitches int64
}

// Provider yields a fresh, non-overlapping sampling window on every call.
type Provider interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Snapshot, error)

func (f ProviderFunc) Sample(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// HostProvider samples the local host with gopsutil.
// Context switches are the delta of the kernel counter across the window.
type HostProvider struct {
	Window time.Duration
}

func NewHostProvider(window time.Duration) *HostProvider {
	if window <= 0 {
		window = time.Second
	}
	return &HostProvider{Window: window}
}

func (p *HostProvider) Sample(ctx context.Context) (Snapshot, error) {
	before, err := load.MiscWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read context switches: %w", err)
	}

	usage, err := cpu.PercentWithContext(ctx, p.Window, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to get CPU usage: %w", err)
	}
	if len(usage) == 0 {
		return Snapshot{}, fmt.Errorf("failed to get CPU usage: empty result")
	}

	after, err := load.MiscWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read context switches: %w", err)
	}

	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list processes: %w", err)
	}

	switches := int64(after.Ctxt - before.Ctxt)
	if switches < 0 {
		switches = 0
	}

	return Snapshot{
		CPUUsage:        usage[0],
		Processes:       len(pids),
		ContextSwitches: switches,
	}, nil
}
