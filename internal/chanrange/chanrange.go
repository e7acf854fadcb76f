// Package chanrange filters a Dispatcher's per-channel result set down to
// the range a subscriber asked for in its Setup message, adapted from the
// teacher's pkg/dma channel-mask-then-copy idiom (there filtering
// interleaved IQ samples down to a requested RF channel mask; here
// filtering a map<channel, ReadData> down to [first, last]).
package chanrange

import "github.com/synthpore/seqdevice/internal/engine"

// Range is an inclusive, 1-based channel window.
type Range struct {
	First uint32
	Last  uint32
}

// Full reports a range that admits every channel - the default before a
// subscriber's Setup message narrows it.
func Full() Range {
	return Range{First: 1, Last: ^uint32(0)}
}

// Contains reports whether channel falls inside the range.
func (r Range) Contains(channel uint32) bool {
	return channel >= r.First && channel <= r.Last
}

// Filter returns a new frame with only the channels inside r, preserving
// every other field. Action responses are never filtered - they apply
// regardless of the subscriber's channel window.
func Filter(frame engine.LiveReadsResponse, r Range) engine.LiveReadsResponse {
	if r == Full() {
		return frame
	}

	out := frame
	out.Channels = make(map[uint32]engine.ReadData, len(frame.Channels))
	for channel, data := range frame.Channels {
		if r.Contains(channel) {
			out.Channels[channel] = data
		}
	}
	return out
}

// FromSetup derives a Range from a Setup message's first/last channel
// fields, defaulting to Full when both are zero (client omitted them).
func FromSetup(s *engine.Setup) Range {
	if s == nil || (s.FirstChannel == 0 && s.LastChannel == 0) {
		return Full()
	}
	r := Range{First: s.FirstChannel, Last: s.LastChannel}
	if r.First == 0 {
		r.First = 1
	}
	return r
}
