package core

// ApplyCycle folds one completed fan-out cycle into the task's counters.
// It is pure: inputs are not mutated, a fresh snapshot is returned so the
// caller can persist it in a single write. Iterations advance by exactly
// one per call regardless of how many providers the cycle touched.
func ApplyCycle(stats Statistics, services map[string]ServiceStats, cycle CycleResult) (Statistics, map[string]ServiceStats) {
	next := stats
	nextServices := cloneServiceStats(services)

	next.Iterations++
	for _, res := range cycle {
		next.TotalRequests++
		entry := nextServices[res.Provider]
		if res.Success {
			next.SuccessfulRequests++
			entry.Success++
		} else {
			next.FailedRequests++
			entry.Failed++
		}
		nextServices[res.Provider] = entry
	}
	return next, nextServices
}

// ZeroServiceStats builds the initial per-provider map with every
// configured provider present at zero.
func ZeroServiceStats(providers []string) map[string]ServiceStats {
	stats := make(map[string]ServiceStats, len(providers))
	for _, name := range providers {
		stats[name] = ServiceStats{}
	}
	return stats
}
