// Package refstore implements the Reference View Store (C1): a read-only,
// memory-mapped view over each reference genome's precomputed signal, plus
// the per-reference read-length distribution and barcode metadata needed to
// generate a read (spec.md §3, §4.1).
package refstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/exp/mmap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/synthpore/seqdevice/internal/config"
)

// Reference is one memory-mapped signal file and its metadata.
type Reference struct {
	Name        string
	FileName    string
	Length      int // number of int16 samples
	IsAmplicon  bool
	BarcodeName string
	Gamma       distuv.Gamma
	SampleIdx   int // index into the config's [[sample]] list this reference came from

	r *mmap.ReaderAt
}

// bytesPerSample is fixed: every reference and barcode file is a flat array
// of little-endian int16 samples (spec.md §6 "Reference signal files").
const bytesPerSample = 2

// Slice copies samples [start, end) out of the memory-mapped file. The
// returned slice is independently owned by the caller - spec.md §9 requires
// that a channel's generated signal be copied out of the store so the
// borrowed view never outlives the Store.
func (ref *Reference) Slice(start, end int) ([]int16, error) {
	if start < 0 || end > ref.Length || start > end {
		return nil, fmt.Errorf("refstore: slice [%d:%d) out of range for %s (len %d)", start, end, ref.Name, ref.Length)
	}
	n := end - start
	buf := make([]byte, n*bytesPerSample)
	if _, err := ref.r.ReadAt(buf, int64(start*bytesPerSample)); err != nil {
		return nil, fmt.Errorf("refstore: reading %s: %w", ref.Name, err)
	}
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return out, nil
}

// Store owns every mapped Reference for a run, plus the stable name
// ordering the weighted sampler draws against.
type Store struct {
	order []string
	refs  map[string]*Reference
}

// Open memory-maps every reference named by the config's samples. Each
// sample's input_genome may be a single signal file, or (amplicon mode) a
// directory containing one file per amplicon. A missing or corrupt file is
// startup-fatal per spec.md §4.1.
func Open(cfg *config.Config) (*Store, error) {
	s := &Store{refs: make(map[string]*Reference)}

	for idx, sample := range cfg.Sample {
		info, err := os.Stat(sample.InputGenome)
		if err != nil {
			return nil, fmt.Errorf("refstore: stat %s: %w", sample.InputGenome, err)
		}

		gamma := readLenDist(sample, cfg.Parameters.GlobalMeanReadLength)

		if info.IsDir() {
			entries, err := os.ReadDir(sample.InputGenome)
			if err != nil {
				return nil, fmt.Errorf("refstore: read_dir %s: %w", sample.InputGenome, err)
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				path := filepath.Join(sample.InputGenome, e.Name())
				name := sanitizeWeightName(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
				if err := s.addReference(path, name, true, sample.Barcode, idx, gamma); err != nil {
					return nil, err
				}
			}
		} else {
			name := filepath.Base(sample.InputGenome)
			if err := s.addReference(sample.InputGenome, name, sample.IsAmplicon(), sample.Barcode, idx, gamma); err != nil {
				return nil, err
			}
		}
	}

	sort.Strings(s.order)
	return s, nil
}

func (s *Store) addReference(path, name string, amplicon bool, barcode string, sampleIdx int, gamma distuv.Gamma) error {
	r, err := mmap.Open(path)
	if err != nil {
		return fmt.Errorf("refstore: mmap %s: %w", path, err)
	}
	length := r.Len() / bytesPerSample
	if length < 1000 {
		r.Close()
		return fmt.Errorf("refstore: %s has only %d samples, need >= 1000", path, length)
	}
	if _, exists := s.refs[name]; exists {
		r.Close()
		return fmt.Errorf("refstore: duplicate reference name %q", name)
	}
	s.refs[name] = &Reference{
		Name:        name,
		FileName:    name,
		Length:      length,
		IsAmplicon:  amplicon,
		BarcodeName: barcode,
		Gamma:       gamma,
		SampleIdx:   sampleIdx,
		r:           r,
	}
	s.order = append(s.order, name)
	return nil
}

// readLenDist derives the per-reference Gamma distribution from sample
// config, falling back to a Gamma with mean equal to the run's
// global_mean_read_length when the sample gives no explicit shape/scale -
// mirroring original_source's Sample::get_read_len_dist.
func readLenDist(s config.Sample, globalMean float64) distuv.Gamma {
	if s.ReadLenShape > 0 && s.ReadLenScale > 0 {
		return distuv.Gamma{Alpha: s.ReadLenShape, Beta: 1 / s.ReadLenScale}
	}
	mean := globalMean
	if mean <= 0 {
		mean = 40000
	}
	const shape = 2.0
	scale := mean / shape
	return distuv.Gamma{Alpha: shape, Beta: 1 / scale}
}

// References returns the stable, sorted list of reference names - the order
// the weighted sampler's weight vector is aligned against.
func (s *Store) References() []string {
	return s.order
}

// Get returns the named reference, or nil.
func (s *Store) Get(name string) *Reference {
	return s.refs[name]
}

// ReadLengthFor returns the Gamma distribution for the named reference.
func (s *Store) ReadLengthFor(name string) (distuv.Gamma, bool) {
	ref, ok := s.refs[name]
	if !ok {
		return distuv.Gamma{}, false
	}
	return ref.Gamma, true
}

// Close unmaps every reference file. Safe to call once at shutdown.
func (s *Store) Close() error {
	var firstErr error
	for _, ref := range s.refs {
		if err := ref.r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DrawStart picks a read start offset for the given reference: 0 for
// amplicons, uniform in [0, L-1000) otherwise (spec.md §3).
func DrawStart(ref *Reference, uniform func(n int) int) int {
	if ref.IsAmplicon {
		return 0
	}
	return uniform(ref.Length - 1000)
}

// EndFor computes the clamped read end offset given a drawn length.
func EndFor(ref *Reference, start int, length float64) int {
	end := start + int(math.Round(length))
	if end > ref.Length-1 {
		end = ref.Length - 1
	}
	return end
}

// sanitizeWeightName strips path separators so a reference's display name is
// stable across OS-es (the teacher never has to do this since its file
// names never contain samples, but amplicon directories legitimately can).
func sanitizeWeightName(name string) string {
	return strings.ReplaceAll(name, string(filepath.Separator), "_")
}
