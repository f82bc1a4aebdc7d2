// Package resource computes the concurrency and cache budget handed to
// external build tools. Planning is a pure function of hardware facts and
// operator overrides; no filesystem or network calls are made here.
package resource

import "fmt"

// FallbackJobs is the job count used when the hardware facts are invalid.
const FallbackJobs = 4

// Memory tier thresholds and defaults, in GB.
const (
	highMemThresholdGB = 64

	lowMemReservedCores  = 1
	highMemReservedCores = 0

	lowMemPerJobGB  = 2
	highMemPerJobGB = 1
)

// Cache budget tiers, in GB.
const (
	cacheBudgetLargeGB  = 50 // memGB >= 128
	cacheBudgetMediumGB = 30 // 64 <= memGB < 128
	cacheBudgetSmallGB  = 20
)

// Facts are the hardware inputs to planning.
type Facts struct {
	// Cores is the logical CPU count.
	Cores int

	// MemGB is total system memory in GB. Zero means unknown; the
	// memory clamp is skipped.
	MemGB int
}

// Overrides are operator-supplied planning overrides. Nil fields use the
// tier defaults.
type Overrides struct {
	// ReservedCores replaces the tier's default reserved core count.
	ReservedCores *int

	// PerJobMemGB replaces the tier's default per-job memory estimate.
	PerJobMemGB *int

	// Jobs sets the job count unconditionally, bypassing the memory
	// clamp entirely. Operator escape hatch; the planner never second-
	// guesses it, even when it exceeds the core count.
	Jobs *int
}

// Plan is the computed concurrency budget. Computed fresh per invocation;
// never persisted.
type Plan struct {
	UsableCores    int
	MemLimitedJobs int
	Jobs           int
	CacheBudgetGB  int
}

// Compute derives a Plan from facts and overrides. It never fails: invalid
// input falls back to FallbackJobs.
func Compute(facts Facts, ov Overrides) Plan {
	if !valid(facts, ov) {
		return Plan{
			UsableCores:    FallbackJobs,
			MemLimitedJobs: FallbackJobs,
			Jobs:           FallbackJobs,
			CacheBudgetGB:  cacheBudget(maxInt(facts.MemGB, 0)),
		}
	}

	reserved := lowMemReservedCores
	perJobMem := lowMemPerJobGB
	if facts.MemGB >= highMemThresholdGB {
		reserved = highMemReservedCores
		perJobMem = highMemPerJobGB
	}
	if ov.ReservedCores != nil {
		reserved = *ov.ReservedCores
	}
	if ov.PerJobMemGB != nil {
		perJobMem = *ov.PerJobMemGB
	}

	usable := maxInt(facts.Cores-reserved, 1)

	memLimited := usable
	if facts.MemGB > 0 {
		memLimited = maxInt(facts.MemGB/perJobMem, 1)
	}

	jobs := minInt(usable, memLimited)
	if ov.Jobs != nil {
		jobs = *ov.Jobs
	}

	return Plan{
		UsableCores:    usable,
		MemLimitedJobs: memLimited,
		Jobs:           jobs,
		CacheBudgetGB:  cacheBudget(facts.MemGB),
	}
}

// Env renders the environment variables handed to external build commands.
func (p Plan) Env() []string {
	return []string{
		fmt.Sprintf("MAX_JOBS=%d", p.Jobs),
		fmt.Sprintf("CMAKE_BUILD_PARALLEL_LEVEL=%d", p.Jobs),
		fmt.Sprintf("MAKEFLAGS=-j%d", p.Jobs),
		fmt.Sprintf("CCACHE_MAXSIZE=%dG", p.CacheBudgetGB),
	}
}

func valid(facts Facts, ov Overrides) bool {
	if facts.Cores < 1 || facts.MemGB < 0 {
		return false
	}
	if ov.ReservedCores != nil && *ov.ReservedCores < 0 {
		return false
	}
	if ov.PerJobMemGB != nil && *ov.PerJobMemGB < 1 {
		return false
	}
	if ov.Jobs != nil && *ov.Jobs < 1 {
		return false
	}
	return true
}

func cacheBudget(memGB int) int {
	switch {
	case memGB >= 128:
		return cacheBudgetLargeGB
	case memGB >= highMemThresholdGB:
		return cacheBudgetMediumGB
	default:
		return cacheBudgetSmallGB
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
