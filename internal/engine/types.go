// Package engine implements the three actors that drive the synthetic
// sequencer: the Producer (C3), Action Applier (C4) and Dispatcher (C5),
// all operating over a shared channelstate.Array (spec.md §4.3-§4.5).
package engine

// ActionKind selects which control operation an Action performs
// (spec.md §4.4).
type ActionKind int

const (
	ActionUnblock ActionKind = iota
	ActionStopFurtherData
)

// Setup is the one-shot first message on a subscriber's ingress stream
// (spec.md §6). Fields are recorded but largely advisory in this
// implementation - the Dispatcher always scans every channel and the
// caller-side chanrange filter narrows the response, per DESIGN.md.
type Setup struct {
	FirstChannel                       uint32  `json:"first_channel"`
	LastChannel                        uint32  `json:"last_channel"`
	RawDataType                        string  `json:"raw_data_type"`
	SampleMinimumChunkSize             uint32  `json:"sample_minimum_chunk_size"`
	AcceptedFirstChunkClassifications  []int32 `json:"accepted_first_chunk_classifications"`
}

// Action is one control message against a single channel (spec.md §6).
// Target is a oneof: exactly one of ReadID or ReadNumber is set, selected
// by HasReadID.
type Action struct {
	ActionID   string     `json:"action_id"`
	Channel    uint32     `json:"channel"` // 1-based
	HasReadID  bool       `json:"has_read_id"`
	ReadID     string     `json:"read_id,omitempty"`
	ReadNumber uint32     `json:"read_number,omitempty"`
	Kind       ActionKind `json:"kind"`
}

// ActionResponse reports the outcome of one successfully-applied action.
// Rejected (stale/duplicate) actions produce no response (spec.md §4.4).
type ActionResponse struct {
	ActionID string `json:"action_id"`
	Status   string `json:"status"`
}

// Request is the wire shape of one client-to-server message: either the
// one-shot Setup or a batch of Actions, never both.
type Request struct {
	Setup   *Setup   `json:"setup,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

// ReadData is one channel's delivered chunk within a LiveReadsResponse
// frame (spec.md §6).
type ReadData struct {
	ID                   string  `json:"id"`
	Number               uint32  `json:"number"`
	StartSample          uint64  `json:"start_sample"`
	ChunkStartSample     uint64  `json:"chunk_start_sample"`
	ChunkLength          uint32  `json:"chunk_length"`
	ChunkClassifications []int32 `json:"chunk_classifications"`
	RawData              []byte  `json:"raw_data"` // little-endian int16 samples
	MedianBefore         float64 `json:"median_before"`
	Median               float64 `json:"median"`
}

// LiveReadsResponse is one frame of the streaming RPC's downstream
// direction, holding at most 24 channels' worth of ReadData (spec.md §4.5).
type LiveReadsResponse struct {
	SamplesSinceStart uint64              `json:"samples_since_start"`
	SecondsSinceStart float64             `json:"seconds_since_start"`
	Channels          map[uint32]ReadData `json:"channels"`
	ActionResponses   []ActionResponse    `json:"action_responses"`
}

const maxChannelsPerFrame = 24
