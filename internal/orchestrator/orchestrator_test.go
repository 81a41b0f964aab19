package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consent-probe/internal/candidate"
	"github.com/xkilldash9x/consent-probe/internal/engine"
	"github.com/xkilldash9x/consent-probe/internal/observation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockRunner returns a canned observation per trial and records invocations.
type mockRunner struct {
	mu      sync.Mutex
	keys    []string
	inUse   atomic.Int64
	maxSeen atomic.Int64
	delay   time.Duration
	runFunc func(t engine.Trial) *observation.Observation
}

func (m *mockRunner) Run(ctx context.Context, t engine.Trial) *observation.Observation {
	cur := m.inUse.Add(1)
	defer m.inUse.Add(-1)
	for {
		max := m.maxSeen.Load()
		if cur <= max || m.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	m.keys = append(m.keys, t.Key())
	m.mu.Unlock()

	if m.runFunc != nil {
		return m.runFunc(t)
	}
	obs := engine.BaseObservation(t, "th-TH", "TH")
	return obs
}

// mockSink collects appended rows in memory.
type mockSink struct {
	mu        sync.Mutex
	rows      []*observation.Observation
	appendErr error
}

func (m *mockSink) Append(o *observation.Observation) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, o)
	return nil
}

func (m *mockSink) keys() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, o := range m.rows {
		out[o.Key()]++
	}
	return out
}

func defaultOpts() Options {
	return Options{Runs: 2, Concurrency: 3, Resume: true, Locale: "th-TH", GeoCountry: "TH"}
}

func cands(domains ...string) []candidate.Row {
	out := make([]candidate.Row, len(domains))
	for i, d := range domains {
		out[i] = candidate.Row{Domain: d, Raw: d, Stratum: "A"}
	}
	return out
}

func TestNewValidation(t *testing.T) {
	logger := zap.NewNop()
	_, err := New(defaultOpts(), nil, &mockSink{}, logger)
	require.Error(t, err)

	_, err = New(Options{Runs: 0, Concurrency: 1}, &mockRunner{}, &mockSink{}, logger)
	require.Error(t, err)

	_, err = New(Options{Runs: 1, Concurrency: 0}, &mockRunner{}, &mockSink{}, logger)
	require.Error(t, err)

	o, err := New(defaultOpts(), &mockRunner{}, &mockSink{}, logger)
	require.NoError(t, err)
	assert.NotNil(t, o)
}

func TestBuildTrialsFullMatrix(t *testing.T) {
	trials := BuildTrials(cands("a.com", "b.com"), 2, nil)
	// 2 domains x 2 devices x 2 runs.
	require.Len(t, trials, 8)
	assert.Equal(t, "a.com|desktop|1", trials[0].Key())
	assert.Equal(t, "a.com|desktop|2", trials[1].Key())
	assert.Equal(t, "a.com|mobile|1", trials[2].Key())
}

func TestBuildTrialsResumeFilter(t *testing.T) {
	done := map[string]struct{}{
		"a.com|desktop|1": {},
		"a.com|mobile|2":  {},
	}
	trials := BuildTrials(cands("a.com"), 2, done)
	require.Len(t, trials, 2)
	for _, tr := range trials {
		_, skipped := done[tr.Key()]
		assert.False(t, skipped, "trial %s should have been filtered", tr.Key())
	}
}

func TestCrawlAppendsEveryTrialOnce(t *testing.T) {
	runner := &mockRunner{}
	sink := &mockSink{}
	o, err := New(defaultOpts(), runner, sink, zap.NewNop())
	require.NoError(t, err)

	trials := BuildTrials(cands("a.com", "b.com"), 2, nil)
	done, failed, err := o.Crawl(context.Background(), trials)

	require.NoError(t, err)
	assert.Equal(t, 8, done)
	assert.Zero(t, failed)
	for key, n := range sink.keys() {
		assert.Equal(t, 1, n, "key %s appended %d times", key, n)
	}
}

func TestCrawlIdempotentAcrossInvocations(t *testing.T) {
	runner := &mockRunner{}
	sink := &mockSink{}
	o, err := New(defaultOpts(), runner, sink, zap.NewNop())
	require.NoError(t, err)

	first := BuildTrials(cands("a.com"), 2, nil)
	_, _, err = o.Crawl(context.Background(), first)
	require.NoError(t, err)

	// Second invocation resumes against the keys already written.
	done := make(map[string]struct{})
	for key := range sink.keys() {
		done[key] = struct{}{}
	}
	second := BuildTrials(cands("a.com"), 2, done)
	assert.Empty(t, second, "a completed matrix must produce no pending trials")

	appended, _, err := o.Crawl(context.Background(), second)
	require.NoError(t, err)
	assert.Zero(t, appended)
	for key, n := range sink.keys() {
		assert.Equal(t, 1, n, "duplicate row for key %s", key)
	}
}

func TestCrawlBoundsConcurrency(t *testing.T) {
	runner := &mockRunner{delay: 20 * time.Millisecond}
	sink := &mockSink{}
	opts := defaultOpts()
	opts.Concurrency = 2
	o, err := New(opts, runner, sink, zap.NewNop())
	require.NoError(t, err)

	trials := BuildTrials(cands("a.com", "b.com", "c.com"), 2, nil)
	_, _, err = o.Crawl(context.Background(), trials)
	require.NoError(t, err)

	assert.LessOrEqual(t, runner.maxSeen.Load(), int64(2),
		"more trials in flight than the configured bound")
}

func TestCrawlPanicBecomesScriptErrorRow(t *testing.T) {
	runner := &mockRunner{
		runFunc: func(tr engine.Trial) *observation.Observation {
			if tr.Candidate.Domain == "boom.com" {
				panic("nil pointer in probe")
			}
			return engine.BaseObservation(tr, "th-TH", "TH")
		},
	}
	sink := &mockSink{}
	opts := defaultOpts()
	opts.Runs = 1
	o, err := New(opts, runner, sink, zap.NewNop())
	require.NoError(t, err)

	trials := BuildTrials(cands("ok.com", "boom.com"), 1, nil)
	done, failed, err := o.Crawl(context.Background(), trials)
	require.NoError(t, err)

	// Every trial is recorded, including the panicked ones.
	assert.Equal(t, 4, done)
	assert.Equal(t, 2, failed)

	var fallbacks int
	for _, row := range sink.rows {
		if row.Status == observation.StatusScriptError {
			fallbacks++
			assert.Equal(t, "boom.com", row.Domain)
			assert.Contains(t, row.BlockedReason, "nil pointer in probe")
			assert.Equal(t, "Unhandled script error", row.Notes)
		}
	}
	assert.Equal(t, 2, fallbacks)
}

func TestCrawlCancelledContext(t *testing.T) {
	runner := &mockRunner{delay: 50 * time.Millisecond}
	sink := &mockSink{}
	opts := defaultOpts()
	opts.Concurrency = 1
	o, err := New(opts, runner, sink, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	trials := BuildTrials(cands("a.com", "b.com", "c.com", "d.com"), 2, nil)
	_, _, err = o.Crawl(ctx, trials)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
