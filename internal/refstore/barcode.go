package refstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// BarcodeSignal holds the prefix and suffix squiggle stitched onto a read's
// genomic signal, matching original_source's create_barcode_squig_hashmap /
// get_barcode_squiggle (there loaded once per barcode name into a HashMap;
// here the same, keyed the same way).
type BarcodeSignal struct {
	Prefix []int16
	Suffix []int16
}

// BarcodeStore holds every barcode squiggle a run's samples reference.
type BarcodeStore struct {
	signals map[string]BarcodeSignal
}

// LoadBarcodes reads `{dir}/{name}_1.squiggle` and `{dir}/{name}_2.squiggle`
// (flat little-endian int16, same layout as reference files) for every
// distinct non-empty barcode name a sample asks for.
func LoadBarcodes(dir string, names []string) (*BarcodeStore, error) {
	store := &BarcodeStore{signals: make(map[string]BarcodeSignal, len(names))}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		prefix, err := readSquiggleFile(filepath.Join(dir, name+"_1.squiggle"))
		if err != nil {
			return nil, err
		}
		suffix, err := readSquiggleFile(filepath.Join(dir, name+"_2.squiggle"))
		if err != nil {
			return nil, err
		}
		store.signals[name] = BarcodeSignal{Prefix: prefix, Suffix: suffix}
	}

	return store, nil
}

func readSquiggleFile(path string) ([]int16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("refstore: reading barcode file %s: %w", path, err)
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("refstore: barcode file %s has odd byte length %d", path, len(data))
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out, nil
}

// Get returns the prefix/suffix signal pair for a barcode name, and whether
// it was found. Stitch joins the pair onto a read.
func (b *BarcodeStore) Get(name string) (BarcodeSignal, bool) {
	sig, ok := b.signals[name]
	return sig, ok
}

// Stitch concatenates prefix, the genomic slice, and suffix into one read
// signal, matching original_source's generate_read barcode-stitching order.
func (sig BarcodeSignal) Stitch(genomic []int16) []int16 {
	out := make([]int16, 0, len(sig.Prefix)+len(genomic)+len(sig.Suffix))
	out = append(out, sig.Prefix...)
	out = append(out, genomic...)
	out = append(out, sig.Suffix...)
	return out
}
