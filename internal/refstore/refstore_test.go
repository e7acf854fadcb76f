package refstore

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/synthpore/seqdevice/internal/config"
)

func writeInt16File(t *testing.T, path string, samples []int16) {
	t.Helper()
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func makeSamples(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(i % 1000)
	}
	return out
}

func TestOpenSingleFileReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref1.squiggle")
	writeInt16File(t, path, makeSamples(2000))

	w := 1.0
	cfg := &config.Config{
		Sample: []config.Sample{{InputGenome: path, Weight: &w}},
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	names := store.References()
	if len(names) != 1 || names[0] != "ref1.squiggle" {
		t.Fatalf("References() = %v", names)
	}

	ref := store.Get("ref1.squiggle")
	if ref == nil {
		t.Fatal("Get returned nil")
	}
	if ref.Length != 2000 {
		t.Errorf("Length = %d, want 2000", ref.Length)
	}

	slice, err := ref.Slice(10, 20)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if len(slice) != 10 {
		t.Fatalf("len(slice) = %d, want 10", len(slice))
	}
	if slice[0] != 10 {
		t.Errorf("slice[0] = %d, want 10", slice[0])
	}
}

func TestOpenAmpliconDirectory(t *testing.T) {
	dir := t.TempDir()
	ampliconDir := filepath.Join(dir, "amplicons")
	if err := os.Mkdir(ampliconDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeInt16File(t, filepath.Join(ampliconDir, "amp1.squiggle"), makeSamples(1500))
	writeInt16File(t, filepath.Join(ampliconDir, "amp2.squiggle"), makeSamples(1600))

	w := 2.0
	cfg := &config.Config{
		Sample: []config.Sample{{InputGenome: ampliconDir, Weight: &w, Amplicon: true}},
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if len(store.References()) != 2 {
		t.Fatalf("References() = %v, want 2 entries", store.References())
	}
	ref := store.Get("amp1")
	if ref == nil || !ref.IsAmplicon {
		t.Fatalf("amp1: %+v", ref)
	}
}

func TestOpenRejectsTooShortReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.squiggle")
	writeInt16File(t, path, makeSamples(10))

	w := 1.0
	cfg := &config.Config{Sample: []config.Sample{{InputGenome: path, Weight: &w}}}
	if _, err := Open(cfg); err == nil {
		t.Fatal("expected error opening a reference shorter than 1000 samples")
	}
}

func TestSliceOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.squiggle")
	writeInt16File(t, path, makeSamples(2000))
	w := 1.0
	cfg := &config.Config{Sample: []config.Sample{{InputGenome: path, Weight: &w}}}
	store, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ref := store.Get("ref.squiggle")
	if _, err := ref.Slice(0, 5000); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestDrawStartAmpliconAlwaysZero(t *testing.T) {
	ref := &Reference{IsAmplicon: true, Length: 5000}
	for i := 0; i < 5; i++ {
		if got := DrawStart(ref, func(n int) int { return n - 1 }); got != 0 {
			t.Fatalf("DrawStart(amplicon) = %d, want 0", got)
		}
	}
}

func TestDrawStartNonAmpliconUsesUniform(t *testing.T) {
	ref := &Reference{IsAmplicon: false, Length: 5000}
	got := DrawStart(ref, func(n int) int { return n - 1 })
	if got != 5000-1000-1 {
		t.Fatalf("DrawStart = %d, want %d", got, 5000-1000-1)
	}
}

func TestEndForClampsToLengthMinusOne(t *testing.T) {
	ref := &Reference{Length: 1000}
	end := EndFor(ref, 500, 10000)
	if end != 999 {
		t.Fatalf("EndFor = %d, want 999", end)
	}
}
