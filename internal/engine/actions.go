package engine

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/synthpore/seqdevice/internal/channelstate"
)

// ActionQueueCapacity bounds a subscriber's ingress queue (spec.md §5).
const ActionQueueCapacity = 6000

// ActionApplier is the per-subscriber actor that consumes Setup/Actions
// messages and mutates the shared Channel State Array (spec.md §4.4).
type ActionApplier struct {
	state  *channelstate.Array
	in     chan Request
	logger log.Logger

	// lastActioned remembers, per channel, the last read_number an Unblock
	// was successfully applied to - sized to the channel count, not a
	// fixed constant, so it scales with however many channels the run
	// configures.
	lastActioned []uint32
	lastSet      []bool
}

// NewActionApplier allocates an applier for a run of N channels.
func NewActionApplier(state *channelstate.Array, logger log.Logger) *ActionApplier {
	return &ActionApplier{
		state:        state,
		in:           make(chan Request, ActionQueueCapacity),
		logger:       logger,
		lastActioned: make([]uint32, state.Len()),
		lastSet:      make([]bool, state.Len()),
	}
}

// Enqueue offers a request to the applier. Blocks if the queue is full,
// matching the bounded-queue model of spec.md §5.
func (a *ActionApplier) Enqueue(req Request) {
	a.in <- req
}

// RequestQueue exposes the ingress channel for callers that need to select
// on it alongside a cancellation signal (the RPC transport's read pump).
func (a *ActionApplier) RequestQueue() chan<- Request {
	return a.in
}

// Run drains the ingress queue until ctx is cancelled or the channel is
// closed, applying each request and returning any ActionResponses it
// produced on out (consumed by the connection's egress writer).
func (a *ActionApplier) Run(ctx context.Context, out chan<- []ActionResponse) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-a.in:
			if !ok {
				return
			}
			responses := a.apply(req)
			if len(responses) > 0 {
				select {
				case out <- responses:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (a *ActionApplier) apply(req Request) []ActionResponse {
	if req.Setup != nil {
		// Idempotent no-op: recording setup parameters has no effect on
		// Channel State in this implementation (spec.md §4.4).
		level.Debug(a.logger).Log("msg", "setup received", "first_channel", req.Setup.FirstChannel, "last_channel", req.Setup.LastChannel)
		return nil
	}

	if len(req.Actions) == 0 {
		return nil
	}

	a.state.Lock()
	defer a.state.Unlock()

	now := time.Now()
	var responses []ActionResponse
	for _, act := range req.Actions {
		if ok := a.applyOne(act, now); ok {
			responses = append(responses, ActionResponse{ActionID: act.ActionID, Status: "success"})
		}
	}
	return responses
}

// applyOne applies a single action while the caller holds the state lock.
// Returns whether an ActionResponse should be produced (spec.md §4.4).
func (a *ActionApplier) applyOne(act Action, now time.Time) bool {
	idx := int(act.Channel) - 1
	if idx < 0 || idx >= a.state.Len() {
		level.Info(a.logger).Log("msg", "action on out-of-range channel", "channel", act.Channel)
		return false
	}
	rec := a.state.At(idx)

	switch act.Kind {
	case ActionUnblock:
		return a.applyUnblock(idx, rec, act, now)
	case ActionStopFurtherData:
		rec.StopReceiving = true
		return true
	default:
		return false
	}
}

func (a *ActionApplier) applyUnblock(idx int, rec *channelstate.Record, act Action, now time.Time) bool {
	if act.HasReadID {
		if rec.ReadID.String() != act.ReadID {
			level.Info(a.logger).Log("msg", "stale unblock by read_id", "channel", act.Channel)
			return false
		}
	} else {
		if a.lastSet[idx] && a.lastActioned[idx] == act.ReadNumber {
			level.Info(a.logger).Log("msg", "duplicate unblock", "channel", act.Channel, "read_number", act.ReadNumber)
			return false
		}
		if rec.ReadNumber != act.ReadNumber {
			level.Info(a.logger).Log("msg", "stale unblock by read_number", "channel", act.Channel, "read_number", act.ReadNumber)
			return false
		}
	}

	rec.WasUnblocked = true
	rec.WriteOut = true
	rec.TimeUnblocked = now
	rec.EndReason = channelstate.EndReasonUnblockMux
	a.lastActioned[idx] = act.ReadNumber
	a.lastSet[idx] = true
	return true
}
