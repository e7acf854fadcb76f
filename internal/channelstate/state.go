// Package channelstate holds the one piece of shared mutable state in the
// simulated device: the fixed-size array of per-channel read records that
// the producer, dispatcher and action-applier actors all read and mutate
// under a single lock (spec.md §3, §4.2, §9).
package channelstate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EndReason mirrors the small integer enum in spec.md §3.
type EndReason uint8

const (
	EndReasonUnset          EndReason = 0
	EndReasonSignalPositive EndReason = 1
	EndReasonUnblockMux     EndReason = 4
)

// SampleRate is the fixed virtual ADC rate: 4000 samples per wall-clock
// second (spec.md §3, "Sample clock").
const SampleRate = 4000

// SamplesFromMillis converts an elapsed duration in milliseconds to samples
// using the exact law spec.md §3 requires: samples = ms * 4.
func SamplesFromMillis(ms int64) int {
	return int(ms * 4)
}

// Record is one channel's read-lifecycle state. Index i in the Array holds
// the record for channel i+1; spec.md §3's invariant "channel == i+1" is
// enforced once at construction and never altered.
type Record struct {
	ReadID      uuid.UUID
	ReadNumber  uint32
	Channel     int
	Signal      []int16
	PrevChunkEnd int

	StartCoord int
	StopCoord  int

	StopReceiving bool
	WasUnblocked  bool
	WriteOut      bool

	StartTimeSamples uint64
	StartTimeWall    time.Time
	DurationSeconds  float64

	TimeAccessed  time.Time
	TimeUnblocked time.Time

	EndReason EndReason
	FileName  string
	StartMux  int
}

// idle reports whether this slot currently holds no read.
func (r *Record) idle() bool {
	return len(r.Signal) == 0
}

// Clone returns an independent copy safe to hand to the persister after the
// lock is released - spec.md §9 "Signal buffers": the persister receives an
// owned snapshot so the slot can be recycled immediately.
func (r *Record) Clone() Record {
	cp := *r
	cp.Signal = make([]int16, len(r.Signal))
	copy(cp.Signal, r.Signal)
	return cp
}

// Array is the Channel State Array (C2): N fixed slots guarded by one mutex.
type Array struct {
	mu      sync.Mutex
	records []Record
}

// New allocates an Array of n channels, each initialized idle with its
// 1-based channel number set, matching spec.md §3's invariant.
func New(n int) *Array {
	records := make([]Record, n)
	now := time.Now()
	for i := range records {
		records[i] = Record{
			Channel:       i + 1,
			StartMux:      1,
			TimeAccessed:  now,
			TimeUnblocked: now,
		}
	}
	return &Array{records: records}
}

// Len returns the number of channels.
func (a *Array) Len() int {
	return len(a.records)
}

// Lock/Unlock expose the single mutex directly to callers that need to hold
// it across a multi-record scan (the Producer's tick pass and the
// Dispatcher's per-iteration scan both do this, per spec.md §5). Using bare
// Lock/Unlock instead of a callback keeps the hot path allocation-free.
func (a *Array) Lock()   { a.mu.Lock() }
func (a *Array) Unlock() { a.mu.Unlock() }

// At returns a pointer to the record for the given zero-based index. Callers
// must hold the lock.
func (a *Array) At(i int) *Record {
	return &a.records[i]
}

// ForChannel returns a pointer to the record for the given 1-based channel
// number, or nil if it is out of range. Callers must hold the lock.
func (a *Array) ForChannel(channel int) *Record {
	i := channel - 1
	if i < 0 || i >= len(a.records) {
		return nil
	}
	return &a.records[i]
}

// WithLock runs fn with the array locked. Convenience for call sites that
// don't need to interleave unlocked work (action application, mostly).
func (a *Array) WithLock(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn()
}
