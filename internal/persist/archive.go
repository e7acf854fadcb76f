package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/segmentio/parquet-go"

	"github.com/synthpore/seqdevice/internal/channelstate"
)

// ArchiveRecord is one persisted read, matching the field set spec.md §6
// requires ("UUID, run id, channel (string), per-read raw-attributes
// map... channel-info... context-tags map and tracking-id map").
// segmentio/parquet-go infers the on-disk schema from these struct tags,
// the same convention the teacher's parquet_writer.go uses for its capture
// rows.
type ArchiveRecord struct {
	ReadID           string  `parquet:"read_id"`
	RunID            string  `parquet:"run_id"`
	Channel          string  `parquet:"channel"`
	ReadNumber       uint32  `parquet:"read_number"`
	StartMux         int32   `parquet:"start_mux"`
	StartTimeSamples uint64  `parquet:"start_time_samples"`
	DurationSamples  int64   `parquet:"duration_samples"`
	EndReason        uint8   `parquet:"end_reason"`
	MedianBefore     float64 `parquet:"median_before"`
	Digitisation     int32   `parquet:"digitisation"`
	Range            float64 `parquet:"range"`
	Offset           float64 `parquet:"offset"`
	SampleRate       float64 `parquet:"sample_rate"`
	Signal           []int16 `parquet:"signal"`
}

// Fixed channel-info constants spec.md §6 names.
const (
	channelDigitisation = 8192
	channelRange        = 6.0
	channelOffset       = 1500.0
	channelSampleRate   = 4000.0
)

// ArchiveMeta holds the run-wide identifiers that populate every archive
// file's context-tags and tracking-id metadata (spec.md §6).
type ArchiveMeta struct {
	RunID         string
	FlowcellID    string
	SampleID      string
	ExperimentID  string
	DeviceID      string
	ProtocolStart string // ISO-8601
}

// contextTags returns a fixed subset of original_source's
// acquisition-parameters map, stored as file-level key/value metadata
// rather than per-row.
func contextTags(m ArchiveMeta) map[string]string {
	return map[string]string{
		"experiment_type":       "genomic_dna",
		"sample_frequency":      "4000",
		"sequencing_kit":        "sqk-synthetic",
		"flow_cell_product_code": "FLO-SYNTH",
		"local_basecalling":     "0",
		"package":               "synthpore",
		"package_version":       "1.0.0",
	}
}

// trackingID returns a fixed subset of original_source's device/flowcell/run
// identifier map.
func trackingID(m ArchiveMeta) map[string]string {
	return map[string]string{
		"asic_id":              m.DeviceID,
		"device_id":            m.DeviceID,
		"device_type":          "synthetic",
		"exp_start_time":       m.ProtocolStart,
		"flow_cell_id":         m.FlowcellID,
		"run_id":               m.RunID,
		"sample_id":            m.SampleID,
		"experiment_id":        m.ExperimentID,
		"protocol_run_id":      m.RunID,
		"protocols_version":    "1.0.0",
		"version":              "1.0.0",
	}
}

// ToArchiveRecord converts a completed channel record into its persisted
// form, applying the unblock-truncation clamp spec.md §4.6 requires.
func ToArchiveRecord(rec channelstate.Record, runID string) ArchiveRecord {
	effectiveLen := len(rec.Signal)
	if rec.WasUnblocked {
		clamped := channelstate.SamplesFromMillis(rec.TimeUnblocked.Sub(rec.StartTimeWall).Milliseconds())
		if clamped < effectiveLen {
			effectiveLen = clamped
		}
		if effectiveLen < 0 {
			effectiveLen = 0
		}
	}

	signal := make([]int16, effectiveLen)
	copy(signal, rec.Signal[:effectiveLen])

	return ArchiveRecord{
		ReadID:           rec.ReadID.String(),
		RunID:            runID,
		Channel:          fmt.Sprintf("%d", rec.Channel),
		ReadNumber:       rec.ReadNumber,
		StartMux:         int32(rec.StartMux),
		StartTimeSamples: rec.StartTimeSamples,
		DurationSamples:  int64(effectiveLen),
		EndReason:        uint8(rec.EndReason),
		MedianBefore:     100.0,
		Digitisation:     channelDigitisation,
		Range:            channelRange,
		Offset:           channelOffset,
		SampleRate:       channelSampleRate,
		Signal:           signal,
	}
}

// ArchivePath computes the output file path for the counter-th archive
// file, per spec.md §6's
// {out}/{experiment}/{sample}/reads/{flowcell}_pass_{run_prefix}_{counter}.arc.
func ArchivePath(readsDir, flowcell, runPrefix string, counter int) string {
	name := fmt.Sprintf("%s_pass_%s_%d.arc", flowcell, runPrefix, counter)
	return filepath.Join(readsDir, name)
}

// WriteArchive writes one batch of records to a new Parquet file at path,
// carrying the run's context-tags and tracking-id maps as file-level
// key/value metadata (adapted from the teacher's parquet_writer.go, which
// uses the same NewGenericWriter + KeyValueMetadata pattern for its own
// capture rows).
func WriteArchive(path string, records []ArchiveRecord, meta ArchiveMeta, onRecordError func(readID string, err error)) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("persist: creating reads dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("persist: creating archive %s: %w", path, err)
	}
	defer f.Close()

	opts := []parquet.WriterOption{}
	for k, v := range contextTags(meta) {
		opts = append(opts, parquet.KeyValueMetadata(k, v))
	}
	for k, v := range trackingID(meta) {
		opts = append(opts, parquet.KeyValueMetadata(k, v))
	}

	writer := parquet.NewGenericWriter[ArchiveRecord](f, opts...)

	// Write one record at a time: a bad record is logged and skipped
	// rather than aborting the whole file (spec.md §4.6, §7
	// "persistence-recoverable").
	for _, rec := range records {
		if _, err := writer.Write([]ArchiveRecord{rec}); err != nil && onRecordError != nil {
			onRecordError(rec.ReadID, err)
		}
	}
	return writer.Close()
}
