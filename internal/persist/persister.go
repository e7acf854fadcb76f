package persist

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/synthpore/seqdevice/internal/channelstate"
)

// FlushThreshold is F in spec.md §4.6: the buffer size that triggers a
// flush to a new archive file.
const FlushThreshold = 4000

// FlushPeriod is the Persister's idle-poll interval (spec.md §4.6).
const FlushPeriod = time.Second

// Persister is the background actor that drains the Producer's completed
// reads and batches them into archive files (spec.md §4.6).
type Persister struct {
	in        <-chan channelstate.Record
	buffer    *RingBuffer[channelstate.Record]
	readsDir  string
	flowcell  string
	runPrefix string
	meta      ArchiveMeta
	logger    log.Logger

	counter int
}

// New constructs a Persister reading from in. readsDir, flowcell and
// runPrefix feed the archive path template in spec.md §6.
func New(in <-chan channelstate.Record, readsDir, flowcell, runPrefix string, meta ArchiveMeta, logger log.Logger) *Persister {
	return &Persister{
		in:        in,
		buffer:    NewRingBuffer[channelstate.Record](FlushThreshold * 2),
		readsDir:  readsDir,
		flowcell:  flowcell,
		runPrefix: runPrefix,
		meta:      meta,
		logger:    logger,
	}
}

// Run drains and flushes until ctx is cancelled.
func (p *Persister) Run(ctx context.Context) {
	ticker := time.NewTicker(FlushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drainAvailable()
			p.flushIfReady()
		}
	}
}

// drainAvailable moves every record currently queued on the producer
// channel into the internal buffer, non-blocking (spec.md §4.6 "Drain all
// currently-available completed-read messages").
func (p *Persister) drainAvailable() {
	for {
		select {
		case rec, ok := <-p.in:
			if !ok {
				return
			}
			if !p.buffer.Push(rec) {
				// Buffer saturated: flush now to make room rather than
				// drop a completed read.
				p.flush(FlushThreshold)
				p.buffer.Push(rec)
			}
		default:
			return
		}
	}
}

func (p *Persister) flushIfReady() {
	if p.buffer.Len() >= FlushThreshold {
		p.flush(FlushThreshold)
	}
}

// flush drains up to n records from the buffer (all of them when fewer are
// buffered) and writes them to a fresh archive file, deduplicating by read_id within that file
// (spec.md §4.6's at-most-once defense).
func (p *Persister) flush(n int) {
	batch := p.buffer.DrainUpTo(n)
	if len(batch) == 0 {
		return
	}

	seen := make(map[string]bool, len(batch))
	records := make([]ArchiveRecord, 0, len(batch))
	for _, rec := range batch {
		id := rec.ReadID.String()
		if seen[id] {
			continue
		}
		seen[id] = true
		records = append(records, ToArchiveRecord(rec, p.meta.RunID))
	}

	path := ArchivePath(p.readsDir, p.flowcell, p.runPrefix, p.counter)
	onRecordError := func(readID string, err error) {
		level.Error(p.logger).Log("msg", "writing record", "read_id", readID, "err", err)
	}
	if err := WriteArchive(path, records, p.meta, onRecordError); err != nil {
		level.Error(p.logger).Log("msg", "creating archive", "path", path, "err", err)
		return
	}
	p.counter++
	level.Info(p.logger).Log("msg", "archive flushed", "path", path, "records", len(records))
}
