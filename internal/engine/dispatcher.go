package engine

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/synthpore/seqdevice/internal/channelstate"
)

// ScanPeriod is the Dispatcher's per-subscriber loop interval (spec.md §4.5).
const ScanPeriod = 200 * time.Millisecond

// minChunkSamples is the minimum amount of new signal worth delivering in
// one iteration: 0.4s of signal at the sample clock (spec.md §4.5).
const minChunkSamples = 1600

// classification is the fixed per-chunk classification code spec.md §4.5
// hard-codes for every delivered chunk.
var classification = []int32{83}

const (
	medianBefore = 225.0
	median       = 110.0
)

// Dispatcher is the per-subscriber streaming actor: it scans every channel
// once per period, copies out newly-available signal, and batches results
// into LiveReadsResponse frames of at most 24 channels (spec.md §4.5).
type Dispatcher struct {
	state *channelstate.Array
}

// NewDispatcher wires a Dispatcher against the shared Channel State Array.
func NewDispatcher(state *channelstate.Array) *Dispatcher {
	return &Dispatcher{state: state}
}

// Run scans and emits frames on out until ctx is cancelled. actionResp
// delivers any pending ActionResponses to be folded into the next frame.
func (d *Dispatcher) Run(ctx context.Context, out chan<- LiveReadsResponse, actionResp <-chan []ActionResponse) {
	ticker := time.NewTicker(ScanPeriod)
	defer ticker.Stop()

	var pendingResponses []ActionResponse

	for {
		select {
		case <-ctx.Done():
			return
		case resp := <-actionResp:
			pendingResponses = append(pendingResponses, resp...)
			continue
		case <-ticker.C:
		}

		batch := d.scan(time.Now())
		if len(batch) == 0 && len(pendingResponses) == 0 {
			continue
		}

		frames := frameBatch(batch, pendingResponses)
		pendingResponses = nil
		for _, frame := range frames {
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}

// scan performs one lock-held pass over every channel, copying out newly
// available signal before releasing the lock (spec.md §4.5, §5).
func (d *Dispatcher) scan(now time.Time) map[uint32]ReadData {
	d.state.Lock()
	defer d.state.Unlock()

	batch := make(map[uint32]ReadData)
	for i := 0; i < d.state.Len(); i++ {
		rec := d.state.At(i)
		if rec.StopReceiving || rec.WasUnblocked || len(rec.Signal) == 0 {
			continue
		}

		samplesElapsed := channelstate.SamplesFromMillis(now.Sub(rec.StartTimeWall).Milliseconds())
		start := rec.PrevChunkEnd
		stop := samplesElapsed
		if stop > len(rec.Signal) {
			stop = len(rec.Signal)
		}
		if stop-start < minChunkSamples {
			continue
		}

		chunk := make([]int16, stop-start)
		copy(chunk, rec.Signal[start:stop])
		rec.PrevChunkEnd = stop
		rec.TimeAccessed = now

		batch[uint32(rec.Channel)] = ReadData{
			ID:                    rec.ReadID.String(),
			Number:                rec.ReadNumber,
			StartSample:           rec.StartTimeSamples,
			ChunkStartSample:      uint64(start),
			ChunkLength:           uint32(stop - start),
			ChunkClassifications:  classification,
			RawData:               encodeLittleEndian(chunk),
			MedianBefore:          medianBefore,
			Median:                median,
		}
	}
	return batch
}

// frameBatch partitions a scan's batch into frames of at most 24 channels
// (spec.md §4.5's "at most 24 map entries per frame").
func frameBatch(batch map[uint32]ReadData, responses []ActionResponse) []LiveReadsResponse {
	if len(batch) == 0 {
		return []LiveReadsResponse{{Channels: map[uint32]ReadData{}, ActionResponses: responses}}
	}

	var frames []LiveReadsResponse
	current := make(map[uint32]ReadData, maxChannelsPerFrame)
	for channel, data := range batch {
		current[channel] = data
		if len(current) == maxChannelsPerFrame {
			frames = append(frames, LiveReadsResponse{Channels: current})
			current = make(map[uint32]ReadData, maxChannelsPerFrame)
		}
	}
	if len(current) > 0 {
		frames = append(frames, LiveReadsResponse{Channels: current})
	}
	if len(frames) > 0 {
		frames[0].ActionResponses = responses
	}
	return frames
}

func encodeLittleEndian(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
