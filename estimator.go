package loom

import "github.com/loomruntime/loom/internal/cycles"

// Estimator tuning. Heuristics, not invariants.
const (
	// loadFactorThreshold is the mean per-core occupancy above which the
	// pool grows: more than one runnable thread per core on average means
	// unexploited parallelism.
	loadFactorThreshold = 1.0

	// idleCoreFractionHysteresis is how far utilization must fall below the
	// high-water mark recorded at the last scale-up before a core is
	// released again.
	idleCoreFractionHysteresis = 0.2

	// slotOccupancyThreshold caps the slot fill at which scale-down is
	// still allowed, so draining a core cannot strand threads with nowhere
	// to go.
	slotOccupancyThreshold = 0.5
)

// A coreLoadEstimator turns successive perfStats snapshots into scale
// verdicts. It is driven from a single goroutine; nothing here is safe for
// concurrent use.
type coreLoadEstimator struct {
	collect       func() perfStats
	previousStats perfStats
	havePrevious  bool

	// utilizationThresholds[n] remembers how many cores' worth of work was
	// in flight when the pool grew past n active cores. Scaling back below
	// n+1 requires utilization to drop clearly under that mark.
	utilizationThresholds []float64
}

func newCoreLoadEstimator(maxNumCores int, collect func() perfStats) *coreLoadEstimator {
	return &coreLoadEstimator{
		collect:               collect,
		utilizationThresholds: make([]float64, maxNumCores),
	}
}

// estimate examines the interval since the previous call and returns +1 to
// grow the pool, -1 to shrink it, or 0 to hold. The first call only seeds
// the baseline snapshot.
func (e *coreLoadEstimator) estimate(curActiveCores int) int {
	stats := e.collect()
	if !e.havePrevious {
		e.previousStats = stats
		e.havePrevious = true
		return 0
	}
	prev := e.previousStats
	e.previousStats = stats

	wallNs := stats.collectionTime - prev.collectionTime
	totalCycles := stats.totalCycles - prev.totalCycles
	if wallNs <= 0 || totalCycles == 0 || curActiveCores == 0 {
		return 0
	}
	idleCycles := stats.idleCycles - prev.idleCycles
	weightedCycles := stats.weightedLoadedCycles - prev.weightedLoadedCycles

	wallCycles := float64(cycles.FromNanoseconds(wallNs))
	totalUtilizedCores := float64(totalCycles-idleCycles) / wallCycles
	averageLoadFactor := float64(weightedCycles) / float64(totalCycles)
	liveThreads := stats.numThreadsCreated - stats.numThreadsFinished
	averageNumSlotsUsed := float64(liveThreads) / float64(curActiveCores) / maxThreadsPerCore

	if curActiveCores < len(e.utilizationThresholds) && averageLoadFactor > loadFactorThreshold {
		e.utilizationThresholds[curActiveCores] = totalUtilizedCores
		return 1
	}
	if curActiveCores > 1 &&
		totalUtilizedCores < e.utilizationThresholds[curActiveCores-1]-idleCoreFractionHysteresis &&
		averageNumSlotsUsed < slotOccupancyThreshold {
		return -1
	}
	return 0
}
