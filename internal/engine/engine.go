package engine

import (
	"context"

	"github.com/go-kit/log"

	"github.com/synthpore/seqdevice/internal/channelstate"
	"github.com/synthpore/seqdevice/internal/refstore"
)

// PersistQueueCapacity bounds the Producer-to-Persister queue (spec.md §5).
const PersistQueueCapacity = 4000

// Engine owns the Channel State Array and the Producer thread, and spawns
// an Action Applier + Dispatcher pair per subscriber connection (spec.md
// §2 "Control flow").
type Engine struct {
	State     *channelstate.Array
	Refs      *refstore.Store
	Sampler   *refstore.Sampler
	Barcodes  *refstore.BarcodeStore
	PersistCh chan channelstate.Record
	Logger    log.Logger

	producer *Producer
}

// New constructs an Engine and its Producer, but does not start any
// goroutines - call Start for that.
func New(channels int, refs *refstore.Store, sampler *refstore.Sampler, barcodes *refstore.BarcodeStore, logger log.Logger) *Engine {
	state := channelstate.New(channels)
	persistCh := make(chan channelstate.Record, PersistQueueCapacity)

	e := &Engine{
		State:     state,
		Refs:      refs,
		Sampler:   sampler,
		Barcodes:  barcodes,
		PersistCh: persistCh,
		Logger:    logger,
	}
	e.producer = NewProducer(state, refs, sampler, barcodes, persistCh, logger)
	return e
}

// Start launches the Producer thread. It runs until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	go e.producer.Run(ctx)
}

// Subscription bundles the per-connection actors and channels an RPC
// transport needs to drive one subscriber (spec.md §2's "each client
// connection spawns one Action Applier and one Dispatcher").
type Subscription struct {
	Applier    *ActionApplier
	Dispatcher *Dispatcher

	Frames   chan LiveReadsResponse
	actionResp chan []ActionResponse
}

// NewSubscription spawns an Action Applier and Dispatcher pair sharing the
// Engine's Channel State Array, and starts both goroutines. Cancel ctx to
// tear the subscriber down cleanly (spec.md §5 "Cancellation").
func (e *Engine) NewSubscription(ctx context.Context) *Subscription {
	applier := NewActionApplier(e.State, e.Logger)
	dispatcher := NewDispatcher(e.State)

	sub := &Subscription{
		Applier:    applier,
		Dispatcher: dispatcher,
		Frames:     make(chan LiveReadsResponse, 1), // synchronous handoff, spec.md §5
		actionResp: make(chan []ActionResponse, 1),
	}

	go applier.Run(ctx, sub.actionResp)
	go dispatcher.Run(ctx, sub.Frames, sub.actionResp)

	return sub
}
