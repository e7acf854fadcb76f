package engine

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/synthpore/seqdevice/internal/channelstate"
	"github.com/synthpore/seqdevice/internal/refstore"
)

// TickPeriod is the Producer's fixed pass interval (spec.md §4.3).
const TickPeriod = 400 * time.Millisecond

// newReadProbability is the per-tick chance an idle slot starts a fresh
// read; the complement models pore inactivity (spec.md §4.3, §9).
const newReadProbability = 0.99

// Producer is the system heartbeat (spec.md §7): one thread, one 400ms
// tick, advances every channel's read lifecycle and hands completed reads
// to the Persister.
type Producer struct {
	state     *channelstate.Array
	refs      *refstore.Store
	sampler   *refstore.Sampler
	barcodes  *refstore.BarcodeStore
	persistCh chan<- channelstate.Record
	logger    log.Logger

	runStart   time.Time
	readNumber uint32 // touched only by this goroutine
}

// NewProducer wires a Producer against its dependencies. persistCh is the
// bounded producer-to-persister queue (spec.md §5, capacity 4000).
func NewProducer(state *channelstate.Array, refs *refstore.Store, sampler *refstore.Sampler, barcodes *refstore.BarcodeStore, persistCh chan<- channelstate.Record, logger log.Logger) *Producer {
	return &Producer{
		state:     state,
		refs:      refs,
		sampler:   sampler,
		barcodes:  barcodes,
		persistCh: persistCh,
		logger:    logger,
		runStart:  time.Now(),
	}
}

// Run drives the tick loop until ctx is cancelled. A panic inside one tick
// is logged and the loop continues - the Producer must never die
// (spec.md §7).
func (p *Producer) Run(ctx context.Context) {
	ticker := time.NewTicker(TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.safeTick(now)
		}
	}
}

func (p *Producer) safeTick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(p.logger).Log("msg", "recovered panic in producer tick", "panic", r)
		}
	}()
	p.tick(now)
}

// tick holds the Channel State lock for the whole pass, per spec.md §4.3
// and §5.
func (p *Producer) tick(now time.Time) {
	p.state.Lock()
	defer p.state.Unlock()

	for i := 0; i < p.state.Len(); i++ {
		rec := p.state.At(i)
		p.advanceChannel(rec, now)
	}
}

func (p *Producer) advanceChannel(rec *channelstate.Record, now time.Time) {
	if len(rec.Signal) == 0 {
		// Idle slot: still eligible to start a read this tick.
		p.maybeStartRead(rec, now)
		return
	}

	finish := rec.StartTimeWall.Add(time.Duration(rec.DurationSeconds * float64(time.Second)))
	if !now.Before(finish) || rec.WasUnblocked {
		if rec.WriteOut {
			// Blocking send: if the Persister is slow the queue fills and
			// this tick stretches, per spec.md §5's back-pressure contract.
			p.persistCh <- rec.Clone()
		}
		rec.Signal = nil
		rec.WasUnblocked = false
		rec.WriteOut = false
		rec.PrevChunkEnd = 0

		p.maybeStartRead(rec, now)
	}
}

func (p *Producer) maybeStartRead(rec *channelstate.Record, now time.Time) {
	if p.sampler.Float64() >= newReadProbability {
		return
	}
	p.startRead(rec, now)
}

// startRead implements spec.md §4.3 "Starting a new read".
func (p *Producer) startRead(rec *channelstate.Record, now time.Time) {
	name := p.sampler.Draw()
	ref := p.refs.Get(name)
	if ref == nil {
		level.Error(p.logger).Log("msg", "sampler drew unknown reference", "name", name)
		return
	}

	start := refstore.DrawStart(ref, p.sampler.Uniform)
	length := ref.Gamma.Rand()
	end := refstore.EndFor(ref, start, length)

	genomic, err := ref.Slice(start, end)
	if err != nil {
		level.Error(p.logger).Log("msg", "slicing reference", "name", name, "err", err)
		return
	}

	signal := genomic
	if ref.BarcodeName != "" && p.barcodes != nil {
		if sig, ok := p.barcodes.Get(ref.BarcodeName); ok {
			signal = sig.Stitch(genomic)
		}
	}

	p.readNumber++

	rec.ReadID = uuid.New()
	rec.ReadNumber = p.readNumber
	rec.Signal = signal
	rec.PrevChunkEnd = 0
	rec.StartCoord = start
	rec.StopCoord = end
	rec.StopReceiving = false
	rec.WasUnblocked = false
	rec.WriteOut = true
	rec.StartTimeWall = now
	rec.StartTimeSamples = uint64(channelstate.SamplesFromMillis(now.Sub(p.runStart).Milliseconds()))
	rec.DurationSeconds = float64(len(signal)) / float64(channelstate.SampleRate)
	rec.TimeAccessed = now
	rec.EndReason = channelstate.EndReasonSignalPositive
	rec.FileName = name

	level.Debug(p.logger).Log("msg", "started read", "channel", rec.Channel, "read_id", rec.ReadID, "reference", name, "len", len(signal))
}
