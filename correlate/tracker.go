package correlate

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aponysus/bulwark/classify"
)

const (
	DefaultRetention     = 24 * time.Hour
	DefaultSweepInterval = time.Hour
	DefaultMaxRecords    = 1000
)

// ErrorRecord is one structured error snapshot inside a correlation.
type ErrorRecord struct {
	Kind      classify.FailureKind
	Category  classify.Category
	Severity  classify.Severity
	Message   string
	Service   string
	Timestamp time.Time
}

// Correlation is the aggregate of all errors observed under one correlation
// id. Values returned by the tracker are copies; mutating them has no
// effect on tracker state.
type Correlation struct {
	ID               string
	Context          Context
	Errors           []ErrorRecord
	RootCause        ErrorRecord
	ErrorChain       []classify.FailureKind
	FirstOccurrence  time.Time
	LastOccurrence   time.Time
	OccurrenceCount  int
	AffectedServices []string
	Severity         classify.Severity
}

type correlationState struct {
	ctx       Context
	errors    []ErrorRecord
	rootCause ErrorRecord
	chain     []classify.FailureKind
	first     time.Time
	last      time.Time
	count     int
	services  map[string]struct{}
	severity  classify.Severity
}

// Tracker aggregates classified errors by correlation id and evicts stale
// records. One mutex guards records and the sweep, so TrackError and the
// background sweep never interleave unsafely.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*correlationState

	maxRecords int
	retention  time.Duration
	sweepEvery time.Duration

	clock  func() time.Time
	logger *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithMaxRecords caps the number of live correlations.
func WithMaxRecords(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.maxRecords = n
		}
	}
}

// WithRetention sets how long an untouched correlation is kept.
func WithRetention(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

// WithSweepInterval sets the background sweep cadence. Zero disables the
// background goroutine; Sweep can still be called directly.
func WithSweepInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.sweepEvery = d }
}

// WithClock overrides the tracker clock, primarily for tests.
func WithClock(f func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if f != nil {
			t.clock = f
		}
	}
}

// WithLogger sets the tracker's logger.
func WithLogger(l *zap.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracker creates a Tracker and, unless the sweep interval was set to
// zero, starts its background sweep goroutine. Close stops it.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		records:    make(map[string]*correlationState),
		maxRecords: DefaultMaxRecords,
		retention:  DefaultRetention,
		sweepEvery: DefaultSweepInterval,
		clock:      time.Now,
		logger:     zap.NewNop(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.sweepEvery > 0 {
		go t.run()
	}
	return t
}

func (t *Tracker) run() {
	ticker := time.NewTicker(t.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Close stops the background sweep. Tracking still works afterwards.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() { close(t.done) })
}

// TrackError records cls under the ambient correlation context on ctx.
// Without an active context there is nothing to correlate under and the
// call is a no-op.
func (t *Tracker) TrackError(ctx context.Context, cls classify.ClassifiedError) {
	cc, ok := FromContext(ctx)
	if !ok {
		return
	}
	t.TrackErrorIn(cc, cls)
}

// TrackErrorIn records cls under the explicit correlation context cc.
func (t *Tracker) TrackErrorIn(cc *Context, cls classify.ClassifiedError) {
	if t == nil || cc == nil || cc.CorrelationID == "" {
		return
	}
	now := t.clock()

	service := cls.Context.Service
	if service == "" {
		service = cc.Service
	}
	rec := ErrorRecord{
		Kind:      cls.Kind,
		Category:  cls.Category,
		Severity:  cls.Severity,
		Message:   cls.Message,
		Service:   service,
		Timestamp: now,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.records[cc.CorrelationID]
	if !ok {
		if len(t.records) >= t.maxRecords {
			t.evictOldestLocked()
		}
		st = &correlationState{
			ctx:      *cc,
			first:    now,
			services: make(map[string]struct{}),
		}
		t.records[cc.CorrelationID] = st
	}

	st.errors = append(st.errors, rec)
	st.chain = append(st.chain, cls.Kind)
	st.count++
	st.last = now
	if service != "" {
		st.services[service] = struct{}{}
	}
	if cls.Severity > st.severity {
		st.severity = cls.Severity
	}
	// Root cause only moves on strictly greater severity; first seen wins ties.
	if st.count == 1 || cls.Severity > st.rootCause.Severity {
		st.rootCause = rec
	}
}

// Correlation returns a copy of the aggregate for id.
func (t *Tracker) Correlation(id string) (Correlation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.records[id]
	if !ok {
		return Correlation{}, false
	}
	return snapshotLocked(id, st), true
}

// Correlations returns copies of every live aggregate.
func (t *Tracker) Correlations() []Correlation {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Correlation, 0, len(t.records))
	for id, st := range t.records {
		out = append(out, snapshotLocked(id, st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastOccurrence.After(out[j].LastOccurrence) })
	return out
}

// Len returns the number of live correlations.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Sweep evicts correlations untouched for longer than the retention window
// and enforces the record cap, oldest last occurrence first.
func (t *Tracker) Sweep() {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for id, st := range t.records {
		if now.Sub(st.last) > t.retention {
			delete(t.records, id)
			evicted++
		}
	}
	for len(t.records) > t.maxRecords {
		t.evictOldestLocked()
		evicted++
	}
	if evicted > 0 {
		t.logger.Debug("correlation sweep evicted records",
			zap.Int("evicted", evicted),
			zap.Int("remaining", len(t.records)))
	}
}

func (t *Tracker) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, st := range t.records {
		if oldestID == "" || st.last.Before(oldest) {
			oldestID = id
			oldest = st.last
		}
	}
	if oldestID != "" {
		delete(t.records, oldestID)
	}
}

func snapshotLocked(id string, st *correlationState) Correlation {
	services := make([]string, 0, len(st.services))
	for s := range st.services {
		services = append(services, s)
	}
	sort.Strings(services)

	errs := make([]ErrorRecord, len(st.errors))
	copy(errs, st.errors)
	chain := make([]classify.FailureKind, len(st.chain))
	copy(chain, st.chain)

	return Correlation{
		ID:               id,
		Context:          st.ctx,
		Errors:           errs,
		RootCause:        st.rootCause,
		ErrorChain:       chain,
		FirstOccurrence:  st.first,
		LastOccurrence:   st.last,
		OccurrenceCount:  st.count,
		AffectedServices: services,
		Severity:         st.severity,
	}
}
