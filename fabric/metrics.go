package fabric

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/gbxfabric/fabric/atomicmem"
)

// Metrics is the shared observability region every error path in §7 counts
// into rather than raising: schema_skew_drops, corruption_drops,
// besteffort_drops, coalesced_count, in that fixed order at the region's
// first 16 bytes. Slot-pool generation tables for every declared pool are
// appended after it by the builder.
type Metrics struct {
	mem  atomicmem.Mem
	base uint32
}

const (
	metricsSchemaSkewDrops = 0
	metricsCorruptionDrops = 4
	metricsBesteffortDrops = 8
	metricsCoalescedCount  = 12
)

func (m *Metrics) IncSchemaSkewDrops() (uint32, error) {
	return m.mem.FetchAdd32(m.base+metricsSchemaSkewDrops, 1)
}

func (m *Metrics) IncCorruptionDrops() (uint32, error) {
	return m.mem.FetchAdd32(m.base+metricsCorruptionDrops, 1)
}

func (m *Metrics) IncBesteffortDrops() (uint32, error) {
	return m.mem.FetchAdd32(m.base+metricsBesteffortDrops, 1)
}

func (m *Metrics) IncCoalescedCount() (uint32, error) {
	return m.mem.FetchAdd32(m.base+metricsCoalescedCount, 1)
}

// Snapshot is a point-in-time read of the fixed counters block.
type Snapshot struct {
	SchemaSkewDrops uint32
	CorruptionDrops uint32
	BesteffortDrops uint32
	CoalescedCount  uint32
}

func (m *Metrics) Snapshot() (Snapshot, error) {
	s := Snapshot{}
	var err error
	if s.SchemaSkewDrops, err = m.mem.Load32(m.base + metricsSchemaSkewDrops); err != nil {
		return s, err
	}
	if s.CorruptionDrops, err = m.mem.Load32(m.base + metricsCorruptionDrops); err != nil {
		return s, err
	}
	if s.BesteffortDrops, err = m.mem.Load32(m.base + metricsBesteffortDrops); err != nil {
		return s, err
	}
	if s.CoalescedCount, err = m.mem.Load32(m.base + metricsCoalescedCount); err != nil {
		return s, err
	}
	return s, nil
}

// AnomalySignature identifies a distinct (endpoint, tag, ver) combination
// that produced a schema-skew drop or a corruption drop.
type AnomalySignature struct {
	Endpoint string
	Tag      uint8
	Ver      uint8
}

func (s AnomalySignature) key() []byte {
	return []byte(fmt.Sprintf("%s:%d:%d", s.Endpoint, s.Tag, s.Ver))
}

// AnomalyTracker sits in front of Metrics and answers "have we already
// logged this exact kind of anomaly this session?" with bounded memory, so
// a flood of schema-skew drops from one misbehaving producer increments the
// counter every time but only logs once per distinct signature.
//
// Grounded on kernel/threads/pattern/bloom.go's existence-check-before-log
// role (there used to gate pattern-detector alerts), swapped for the real
// bits-and-blooms/bloom/v3 library the teacher's kernel module declares but
// never imports.
type AnomalyTracker struct {
	mu      sync.Mutex
	seen    *bloom.BloomFilter
	metrics *Metrics
}

// NewAnomalyTracker sized for roughly 1024 distinct signatures at a 1%
// false-positive rate, generous headroom for the fixed, small tag/ver
// space this fabric's wire layout allows.
func NewAnomalyTracker(metrics *Metrics) *AnomalyTracker {
	return &AnomalyTracker{
		seen:    bloom.NewWithEstimates(1024, 0.01),
		metrics: metrics,
	}
}

// RecordSchemaSkew increments schema_skew_drops and reports whether sig has
// not been seen before this call (first-of-its-kind), so the caller can
// decide to log loudly only on that transition.
func (t *AnomalyTracker) RecordSchemaSkew(sig AnomalySignature) (firstOfKind bool, err error) {
	firstOfKind = t.noteAndCheck(sig)
	_, err = t.metrics.IncSchemaSkewDrops()
	return firstOfKind, err
}

// RecordCorruption increments corruption_drops and reports firstOfKind the
// same way RecordSchemaSkew does.
func (t *AnomalyTracker) RecordCorruption(sig AnomalySignature) (firstOfKind bool, err error) {
	firstOfKind = t.noteAndCheck(sig)
	_, err = t.metrics.IncCorruptionDrops()
	return firstOfKind, err
}

func (t *AnomalyTracker) noteAndCheck(sig AnomalySignature) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := sig.key()
	if t.seen.Test(key) {
		return false
	}
	t.seen.Add(key)
	return true
}
