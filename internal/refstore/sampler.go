package refstore

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/synthpore/seqdevice/internal/config"
)

// Sampler draws reference names with probability proportional to their
// configured weight, matching original_source's read_species_distribution
// (there built on rand::distributions::WeightedIndex; here a plain
// prefix-sum binary search, since the pack carries no alias-method library
// and the reference count per run is small, spec.md §9).
type Sampler struct {
	names []string
	cumul []float64 // cumulative weights, cumul[len-1] == total
	rng   *rand.Rand
}

// weightsSidecar is the shape of a sample's weights_file: a JSON object
// mapping reference name to weight, used when a sample spans many
// amplicons and a single scalar weight can't express their relative
// abundance.
type weightsSidecar map[string]float64

// NewSampler builds a weighted sampler over every reference the store
// holds. A sample's scalar Weight applies to every reference it
// contributed; a WeightsFile overrides per-reference-name weights for that
// sample's references. seed makes draws reproducible across a run.
func NewSampler(store *Store, cfg *config.Config, seed int64) (*Sampler, error) {
	weights := make(map[string]float64, len(store.order))

	for idx, sample := range cfg.Sample {
		var sideload weightsSidecar
		if sample.WeightsFile != "" {
			data, err := os.ReadFile(sample.WeightsFile)
			if err != nil {
				return nil, fmt.Errorf("refstore: reading weights_file %s: %w", sample.WeightsFile, err)
			}
			if err := json.Unmarshal(data, &sideload); err != nil {
				return nil, fmt.Errorf("refstore: parsing weights_file %s: %w", sample.WeightsFile, err)
			}
		}
		for name, ref := range store.refs {
			if ref.SampleIdx != idx {
				continue
			}
			if w, ok := sideload[name]; ok {
				weights[name] = w
			} else if sample.Weight != nil {
				weights[name] = *sample.Weight
			}
		}
	}

	names := make([]string, 0, len(store.order))
	cumul := make([]float64, 0, len(store.order))
	total := 0.0
	for _, name := range store.order {
		w := weights[name]
		if w <= 0 {
			continue
		}
		total += w
		names = append(names, name)
		cumul = append(cumul, total)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("refstore: no reference has a positive weight")
	}

	return &Sampler{
		names: names,
		cumul: cumul,
		rng:   rand.New(rand.NewSource(seed)),
	}, nil
}

// Draw returns one reference name, chosen with probability proportional to
// its configured weight.
func (s *Sampler) Draw() string {
	total := s.cumul[len(s.cumul)-1]
	x := s.rng.Float64() * total
	i := sort.SearchFloat64s(s.cumul, x)
	if i >= len(s.names) {
		i = len(s.names) - 1
	}
	return s.names[i]
}

// Uniform returns a uniform integer in [0, n), matching the signature
// refstore.DrawStart expects.
func (s *Sampler) Uniform(n int) int {
	if n <= 0 {
		return 0
	}
	return s.rng.Intn(n)
}

// Float64 returns a uniform float in [0, 1), used by the producer to decide
// whether a new read starts on a given tick (spec.md §4.3's 0.99
// probability gate).
func (s *Sampler) Float64() float64 {
	return s.rng.Float64()
}
