package metrics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aponysus/bulwark/circuit"
	"github.com/aponysus/bulwark/classify"
)

// Analytics is the rolled-up error view for one operation, or for the
// whole system when aggregated.
type Analytics struct {
	Operation          string
	TotalAttempts      int
	TotalErrors        int
	TotalSuccesses     int
	ShortCircuits      int
	AverageAttempts    float64 // attempts-to-resolution across successes
	ErrorKindCounts    map[classify.FailureKind]int
	MostCommonCategory classify.Category
	RecentOutcomes     []Outcome
}

// ErrorAnalytics returns the rollup for one operation, or the aggregate
// across all operations when operation is empty.
func (r *Reporter) ErrorAnalytics(operation string) Analytics {
	r.mu.Lock()
	defer r.mu.Unlock()

	if operation != "" {
		st, ok := r.ops[operation]
		if !ok {
			return Analytics{Operation: operation, ErrorKindCounts: map[classify.FailureKind]int{}}
		}
		return analyticsLocked(operation, st)
	}

	agg := Analytics{ErrorKindCounts: make(map[classify.FailureKind]int)}
	catCounts := make(map[classify.Category]int)
	for _, st := range r.ops {
		agg.TotalAttempts += st.attempts
		agg.TotalErrors += st.failures
		agg.TotalSuccesses += st.successes
		agg.ShortCircuits += st.shortCircuits
		for k, n := range st.kindCounts {
			agg.ErrorKindCounts[k] += n
		}
		for c, n := range st.categoryCounts {
			catCounts[c] += n
		}
	}
	var resolved, resAttempts int
	for _, st := range r.ops {
		resolved += st.successes
		resAttempts += st.resolutionAttempts
	}
	if resolved > 0 {
		agg.AverageAttempts = float64(resAttempts) / float64(resolved)
	}
	agg.MostCommonCategory = mostCommon(catCounts)
	return agg
}

func analyticsLocked(operation string, st *operationStats) Analytics {
	a := Analytics{
		Operation:       operation,
		TotalAttempts:   st.attempts,
		TotalErrors:     st.failures,
		TotalSuccesses:  st.successes,
		ShortCircuits:   st.shortCircuits,
		ErrorKindCounts: make(map[classify.FailureKind]int, len(st.kindCounts)),
		RecentOutcomes:  append([]Outcome(nil), st.history...),
	}
	for k, n := range st.kindCounts {
		a.ErrorKindCounts[k] = n
	}
	if st.successes > 0 {
		a.AverageAttempts = float64(st.resolutionAttempts) / float64(st.successes)
	}
	a.MostCommonCategory = mostCommon(st.categoryCounts)
	return a
}

func mostCommon(counts map[classify.Category]int) classify.Category {
	var best classify.Category
	bestN := 0
	keys := make([]string, 0, len(counts))
	for c := range counts {
		keys = append(keys, string(c))
	}
	// Deterministic on ties.
	sort.Strings(keys)
	for _, k := range keys {
		c := classify.Category(k)
		if counts[c] > bestN {
			best = c
			bestN = counts[c]
		}
	}
	return best
}

// OperationHealth is the per-operation slice of a ServiceHealth view.
type OperationHealth struct {
	Operation    string
	BreakerState circuit.State
	ErrorRate    float64 // failures / (failures + successes), recent history
	Failures     int
	Successes    int
}

// ServiceHealth is the system-wide health view.
type ServiceHealth struct {
	Healthy         bool
	BreakerStates   map[string]circuit.State
	ErrorRates      map[string]float64
	TopFailing      []OperationHealth
	Recommendations []string
}

// topFailingLimit bounds the ranked failing-operations list.
const topFailingLimit = 5

// Health builds the system-wide view from the reporter's rollups and a
// breaker-state snapshot. It also refreshes the breaker-state gauge when
// Prometheus collectors are registered.
func (r *Reporter) Health(breakers map[string]circuit.State) ServiceHealth {
	r.mu.Lock()
	perOp := make([]OperationHealth, 0, len(r.ops))
	rates := make(map[string]float64, len(r.ops))
	for name, st := range r.ops {
		total := st.failures + st.successes
		rate := 0.0
		if total > 0 {
			rate = float64(st.failures) / float64(total)
		}
		rates[name] = rate
		perOp = append(perOp, OperationHealth{
			Operation:    name,
			BreakerState: breakers[name],
			ErrorRate:    rate,
			Failures:     st.failures,
			Successes:    st.successes,
		})
	}
	r.mu.Unlock()

	if r.prom != nil {
		for name, state := range breakers {
			r.prom.breakerState.WithLabelValues(name).Set(float64(state))
		}
	}

	sort.Slice(perOp, func(i, j int) bool {
		if perOp[i].ErrorRate != perOp[j].ErrorRate {
			return perOp[i].ErrorRate > perOp[j].ErrorRate
		}
		return perOp[i].Operation < perOp[j].Operation
	})
	top := perOp
	if len(top) > topFailingLimit {
		top = top[:topFailingLimit]
	}

	healthy := true
	var recs []string
	for name, state := range breakers {
		if state == circuit.StateOpen {
			healthy = false
			recs = append(recs, fmt.Sprintf("breaker for %s is open; check the upstream before retrying", name))
		}
	}
	for _, oh := range top {
		if oh.ErrorRate > 0.5 && oh.Failures >= 3 {
			healthy = false
			recs = append(recs, fmt.Sprintf("operation %s is failing %.0f%% of calls", oh.Operation, oh.ErrorRate*100))
		}
	}
	sort.Strings(recs)

	return ServiceHealth{
		Healthy:         healthy,
		BreakerStates:   breakers,
		ErrorRates:      rates,
		TopFailing:      top,
		Recommendations: recs,
	}
}

// RenderReport renders a human-readable diagnostic summary. The format is
// advisory: meant for dashboards and log digests, not machine parsing.
func (r *Reporter) RenderReport(breakers map[string]circuit.State, now time.Time) string {
	health := r.Health(breakers)

	var b strings.Builder
	fmt.Fprintf(&b, "bulwark diagnostics %s\n", now.Format(time.RFC3339))
	if health.Healthy {
		b.WriteString("status: healthy\n")
	} else {
		b.WriteString("status: degraded\n")
	}

	names := make([]string, 0, len(health.ErrorRates))
	for name := range health.ErrorRates {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		a := r.ErrorAnalytics(name)
		fmt.Fprintf(&b, "  %-32s breaker=%-9s errors=%d/%d short_circuits=%d avg_attempts=%.2f",
			name, breakers[name], a.TotalErrors, a.TotalErrors+a.TotalSuccesses, a.ShortCircuits, a.AverageAttempts)
		if a.MostCommonCategory != "" {
			fmt.Fprintf(&b, " top_category=%s", a.MostCommonCategory)
		}
		b.WriteByte('\n')
	}

	for _, rec := range health.Recommendations {
		fmt.Fprintf(&b, "  ! %s\n", rec)
	}
	return b.String()
}
