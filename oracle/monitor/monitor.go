package monitor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum/common"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

const (
	ServiceName     = "oracled"
	metricsInterval = 10 * time.Second
	metricsRetain   = time.Minute
)

// Entry is the JSON view of one submission attempt.
type Entry struct {
	Oracle     string    `json:"oracle"`
	Index      uint8     `json:"index"`
	Airline    string    `json:"airline"`
	Flight     string    `json:"flight"`
	Timestamp  string    `json:"timestamp"`
	Verdict    string    `json:"verdict"`
	StatusCode uint8     `json:"status_code"`
	Outcome    string    `json:"outcome"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	DurationMs int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

func NewEntry(a types.SubmissionAttempt) Entry {
	e := Entry{
		Oracle:     a.Oracle.Address.Hex(),
		Index:      uint8(a.Event.SelectorIndex),
		Airline:    a.Event.Airline.Hex(),
		Flight:     a.Event.Flight,
		Verdict:    a.Verdict.String(),
		StatusCode: uint8(a.Verdict),
		Outcome:    a.Outcome.String(),
		Attempts:   a.Attempts,
		DurationMs: a.Duration().Milliseconds(),
		FinishedAt: a.FinishedAt,
	}
	if a.Event.Timestamp != nil {
		e.Timestamp = a.Event.Timestamp.String()
	}
	if a.TxHash != (common.Hash{}) {
		e.TxHash = a.TxHash.Hex()
	}
	if a.Err != nil {
		e.Error = a.Err.Error()
	}

	return e
}

// Counts are totals since start.
type Counts struct {
	Accepted    uint64 `json:"accepted"`
	Rejected    uint64 `json:"rejected"`
	// Unconfirmed were broadcast but no receipt was seen.
	Unconfirmed uint64 `json:"unconfirmed"`
}

// Monitor keeps the latest attempt of every oracle, counts outcomes and fans
// attempts out to subscribers.
type Monitor struct {
	last        cmap.ConcurrentMap[string, Entry]
	accepted    atomic.Uint64
	rejected    atomic.Uint64
	unconfirmed atomic.Uint64

	sink    *metrics.InmemSink
	metrics *metrics.Metrics

	mu     sync.RWMutex
	subs   map[int]chan Entry
	nextID int
}

func New() (*Monitor, error) {
	sink := metrics.NewInmemSink(metricsInterval, metricsRetain)

	conf := metrics.DefaultConfig(ServiceName)
	conf.EnableHostname = false
	conf.EnableRuntimeMetrics = false

	m, err := metrics.New(conf, sink)
	if err != nil {
		return nil, err
	}

	return &Monitor{
		last:    cmap.New[Entry](),
		sink:    sink,
		metrics: m,
		subs:    make(map[int]chan Entry),
	}, nil
}

// Record implements dispatcher.Recorder.
func (m *Monitor) Record(a types.SubmissionAttempt) {
	entry := NewEntry(a)
	m.last.Set(entry.Oracle, entry)

	labels := []metrics.Label{{Name: "verdict", Value: entry.Verdict}}
	switch a.Outcome {
	case types.Accepted:
		m.accepted.Add(1)
		m.metrics.IncrCounterWithLabels([]string{"submissions", "accepted"}, 1, labels)
	case types.Rejected:
		m.rejected.Add(1)
		m.metrics.IncrCounterWithLabels([]string{"submissions", "rejected"}, 1, labels)
	case types.Pending:
		m.unconfirmed.Add(1)
		m.metrics.IncrCounterWithLabels([]string{"submissions", "unconfirmed"}, 1, labels)
	}
	if !a.StartedAt.IsZero() {
		m.metrics.AddSample([]string{"submissions", "duration_ms"}, float32(entry.DurationMs))
	}

	m.broadcast(entry)
}

func (m *Monitor) broadcast(entry Entry) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, ch := range m.subs {
		select {
		case ch <- entry:
		default:
			log.Debugf("dropping attempt for slow subscriber %d", id)
		}
	}
}

// Subscribe returns a channel of future attempts and a function that ends
// the subscription. A subscriber that does not keep up misses entries.
func (m *Monitor) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	ch := make(chan Entry, buffer)
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Attempts returns the latest attempt per oracle, ordered by oracle address.
func (m *Monitor) Attempts() []Entry {
	out := make([]Entry, 0, m.last.Count())
	for _, entry := range m.last.Items() {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Oracle < out[j].Oracle })

	return out
}

func (m *Monitor) Last(oracle string) (Entry, bool) {
	return m.last.Get(oracle)
}

func (m *Monitor) Counts() Counts {
	return Counts{
		Accepted:    m.accepted.Load(),
		Rejected:    m.rejected.Load(),
		Unconfirmed: m.unconfirmed.Load(),
	}
}

// Metrics is shared with other components that emit counters.
func (m *Monitor) Metrics() *metrics.Metrics {
	return m.metrics
}

func (m *Monitor) Sink() *metrics.InmemSink {
	return m.sink
}
