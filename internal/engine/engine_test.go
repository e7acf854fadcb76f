package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/log"

	"github.com/synthpore/seqdevice/internal/config"
	"github.com/synthpore/seqdevice/internal/refstore"
)

func TestEngineStartAndSubscribeProducesFrames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.squiggle")
	samples := make([]byte, 2*20000)
	for i := 0; i < 20000; i++ {
		samples[i*2] = byte(i)
	}
	if err := os.WriteFile(path, samples, 0o644); err != nil {
		t.Fatal(err)
	}

	w := 1.0
	cfg := &config.Config{
		Sample: []config.Sample{{InputGenome: path, Weight: &w, ReadLenShape: 2, ReadLenScale: 2000}},
	}
	refs, err := refstore.Open(cfg)
	if err != nil {
		t.Fatalf("refstore.Open: %v", err)
	}
	defer refs.Close()

	sampler, err := refstore.NewSampler(refs, cfg, 7)
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}

	eng := New(8, refs, sampler, nil, log.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)

	sub := eng.NewSubscription(ctx)

	select {
	case frame := <-sub.Frames:
		_ = frame // any frame arriving confirms the actors are wired together
	case <-time.After(8 * time.Second):
		t.Fatal("timed out waiting for a frame from the engine")
	}
}
