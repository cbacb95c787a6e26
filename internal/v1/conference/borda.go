package conference

import "sort"

// BordaAggregator maintains the conference's effective video codec
// preference order across visitor cohorts (4.F.1, 5. CONCURRENCY). Each
// cohort contributes one ranked preference list; the effective order is the
// rank-sum (Borda count) order, restricted to codecs every contributing
// cohort listed (TESTABLE PROPERTY S6).
type BordaAggregator struct {
	cohorts map[string][]CodecName
}

// NewBordaAggregator constructs an empty aggregator.
func NewBordaAggregator() *BordaAggregator {
	return &BordaAggregator{cohorts: make(map[string][]CodecName)}
}

// SetCohortPreference records or replaces one cohort's ranked preference
// list, best-first.
func (a *BordaAggregator) SetCohortPreference(cohortID string, ranked []CodecName) {
	a.cohorts[cohortID] = ranked
}

// RemoveCohort drops a cohort's contribution, e.g. when its last visitor
// leaves.
func (a *BordaAggregator) RemoveCohort(cohortID string) {
	delete(a.cohorts, cohortID)
}

// EffectiveOrder recomputes the aggregate order: rank-sum ascending
// (lower is more preferred, matching Borda's "sum of positions" count),
// restricted to codecs present in every cohort's list. O(n*k) in the number
// of cohort preferences (n) and distinct codecs (k), per 5. CONCURRENCY.
func (a *BordaAggregator) EffectiveOrder() []CodecName {
	if len(a.cohorts) == 0 {
		return nil
	}

	rankSum := make(map[CodecName]int)
	presentIn := make(map[CodecName]int)
	for _, ranked := range a.cohorts {
		for rank, codec := range ranked {
			rankSum[codec] += rank
			presentIn[codec]++
		}
	}

	n := len(a.cohorts)
	var eligible []CodecName
	for codec, count := range presentIn {
		if count == n {
			eligible = append(eligible, codec)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		if rankSum[eligible[i]] != rankSum[eligible[j]] {
			return rankSum[eligible[i]] < rankSum[eligible[j]]
		}
		return eligible[i] < eligible[j]
	})
	return eligible
}
