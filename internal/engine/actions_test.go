package engine

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/google/uuid"

	"github.com/synthpore/seqdevice/internal/channelstate"
)

func newTestApplier(channels int) (*ActionApplier, *channelstate.Array) {
	state := channelstate.New(channels)
	return NewActionApplier(state, log.NewNopLogger()), state
}

func TestApplySetupIsIdempotentNoOp(t *testing.T) {
	applier, _ := newTestApplier(4)
	resp := applier.apply(Request{Setup: &Setup{FirstChannel: 1, LastChannel: 4}})
	if resp != nil {
		t.Fatalf("Setup should produce no ActionResponse, got %v", resp)
	}
}

func TestApplyUnblockByReadNumber(t *testing.T) {
	applier, state := newTestApplier(4)
	rec := state.ForChannel(3)
	rec.ReadNumber = 7

	resp := applier.apply(Request{Actions: []Action{{
		ActionID:   "a1",
		Channel:    3,
		ReadNumber: 7,
		Kind:       ActionUnblock,
	}}})

	if len(resp) != 1 || resp[0].ActionID != "a1" || resp[0].Status != "success" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if !rec.WasUnblocked || !rec.WriteOut {
		t.Fatalf("record not marked unblocked: %+v", rec)
	}
	if rec.EndReason != channelstate.EndReasonUnblockMux {
		t.Errorf("EndReason = %v, want EndReasonUnblockMux", rec.EndReason)
	}
}

func TestApplyUnblockDuplicateIsSilentlyRejected(t *testing.T) {
	applier, state := newTestApplier(4)
	rec := state.ForChannel(1)
	rec.ReadNumber = 42

	act := Action{ActionID: "dup", Channel: 1, ReadNumber: 42, Kind: ActionUnblock}

	first := applier.apply(Request{Actions: []Action{act}})
	if len(first) != 1 {
		t.Fatalf("first unblock should succeed, got %v", first)
	}

	// The same unblock for the same read number arrives again - should be a
	// no-op the second time.
	second := applier.apply(Request{Actions: []Action{act}})
	if len(second) != 0 {
		t.Fatalf("duplicate unblock should produce no response, got %v", second)
	}
}

func TestApplyUnblockStaleReadNumberRejected(t *testing.T) {
	applier, state := newTestApplier(4)
	rec := state.ForChannel(2)
	rec.ReadNumber = 5

	resp := applier.apply(Request{Actions: []Action{{
		ActionID:   "stale",
		Channel:    2,
		ReadNumber: 999999,
		Kind:       ActionUnblock,
	}}})

	if len(resp) != 0 {
		t.Fatalf("stale unblock should produce no response, got %v", resp)
	}
	if rec.WasUnblocked {
		t.Fatal("stale unblock should not change state")
	}
}

func TestApplyStopFurtherData(t *testing.T) {
	applier, state := newTestApplier(4)
	resp := applier.apply(Request{Actions: []Action{{
		ActionID: "stop1",
		Channel:  1,
		Kind:     ActionStopFurtherData,
	}}})
	if len(resp) != 1 {
		t.Fatalf("expected one response, got %v", resp)
	}
	if !state.ForChannel(1).StopReceiving {
		t.Fatal("StopReceiving not set")
	}
}

func TestApplyActionOutOfRangeChannelIgnored(t *testing.T) {
	applier, _ := newTestApplier(4)
	resp := applier.apply(Request{Actions: []Action{{
		ActionID: "oob",
		Channel:  99,
		Kind:     ActionStopFurtherData,
	}}})
	if len(resp) != 0 {
		t.Fatalf("expected no response for out-of-range channel, got %v", resp)
	}
}

func TestApplyUnblockByReadID(t *testing.T) {
	applier, state := newTestApplier(2)
	rec := state.ForChannel(1)
	rec.ReadID = uuid.New()

	resp := applier.apply(Request{Actions: []Action{{
		ActionID:  "by-id",
		Channel:   1,
		HasReadID: true,
		ReadID:    rec.ReadID.String(),
		Kind:      ActionUnblock,
	}}})
	if len(resp) != 1 {
		t.Fatalf("expected success, got %v", resp)
	}
}

func TestApplyUnblockByReadIDMismatchRejected(t *testing.T) {
	applier, state := newTestApplier(2)
	rec := state.ForChannel(1)
	rec.ReadID = uuid.New()

	resp := applier.apply(Request{Actions: []Action{{
		ActionID:  "wrong-id",
		Channel:   1,
		HasReadID: true,
		ReadID:    uuid.New().String(),
		Kind:      ActionUnblock,
	}}})
	if len(resp) != 0 {
		t.Fatalf("expected rejection, got %v", resp)
	}
}

func TestRunDeliversResponsesAndRespectsCancellation(t *testing.T) {
	applier, state := newTestApplier(2)
	rec := state.ForChannel(1)
	rec.ReadNumber = 1

	out := make(chan []ActionResponse, 1)
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		applier.Run(ctx, out)
		close(done)
	}()

	applier.Enqueue(Request{Actions: []Action{{ActionID: "x", Channel: 1, ReadNumber: 1, Kind: ActionUnblock}}})

	select {
	case resp := <-out:
		if len(resp) != 1 {
			t.Fatalf("unexpected response batch: %v", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ActionResponse")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancellation")
	}
}
