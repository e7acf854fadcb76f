package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/synthpore/seqdevice/internal/config"
	"github.com/synthpore/seqdevice/internal/engine"
	"github.com/synthpore/seqdevice/internal/persist"
	"github.com/synthpore/seqdevice/internal/refstore"
	"github.com/synthpore/seqdevice/internal/rpcserver"
)

func main() {
	configPath := flag.String("c", "config.toml", "run configuration file (TOML)")
	addr := flag.String("addr", ":8080", "listen address for the RPC surface")
	validateOnly := flag.Bool("validate", false, "load and validate the config, then exit")
	seed := flag.Int64("seed", time.Now().UnixNano(), "RNG seed for the weighted sampler")
	barcodeDir := flag.String("barcode-dir", "", "directory holding {name}_1.squiggle / {name}_2.squiggle files")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "  Serve mode:    seqdevice -c config.toml -addr :8080")
		fmt.Fprintln(os.Stderr, "  Validate mode: seqdevice -c config.toml -validate")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}
	flag.Parse()

	fmt.Println("--- Synthetic Sequencer Startup ---")
	fmt.Printf("Config:  %s\n", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Samples: %d | Channels: %d\n", len(cfg.Sample), cfg.Parameters.Channels)

	if *validateOnly {
		fmt.Println(">>> Config OK")
		return
	}

	logger := kitlog.NewLogfmtLogger(os.Stderr)
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)

	refs, err := refstore.Open(cfg)
	if err != nil {
		level.Error(logger).Log("msg", "opening reference store", "err", err)
		os.Exit(1)
	}
	defer refs.Close()

	sampler, err := refstore.NewSampler(refs, cfg, *seed)
	if err != nil {
		level.Error(logger).Log("msg", "building sampler", "err", err)
		os.Exit(1)
	}

	var barcodes *refstore.BarcodeStore
	if *barcodeDir != "" {
		names := barcodeNames(cfg)
		barcodes, err = refstore.LoadBarcodes(*barcodeDir, names)
		if err != nil {
			level.Error(logger).Log("msg", "loading barcodes", "err", err)
			os.Exit(1)
		}
	}

	eng := engine.New(cfg.Parameters.Channels, refs, sampler, barcodes, logger)

	runID := uuid.New().String()
	meta := persist.ArchiveMeta{
		RunID:         runID,
		FlowcellID:    cfg.Parameters.FlowcellName,
		SampleID:      cfg.Parameters.SampleName,
		ExperimentID:  cfg.Parameters.ExperimentName,
		DeviceID:      "synthetic-0",
		ProtocolStart: time.Now().UTC().Format(time.RFC3339),
	}
	persister := persist.New(eng.PersistCh, cfg.ReadsDir(), cfg.Parameters.FlowcellName, runID[:8], meta, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng.Start(ctx)
	go persister.Run(ctx)

	srv := rpcserver.New(eng, logger)
	mux := http.NewServeMux()
	srv.Routes(mux)

	httpServer := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		fmt.Printf(">>> Serving on %s (run_id=%s)\n", *addr, runID)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "http server", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println(">>> Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	cancel()
}

// barcodeNames collects every distinct non-empty barcode name a sample
// references, in config order.
func barcodeNames(cfg *config.Config) []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range cfg.Sample {
		if s.Barcode != "" && !seen[s.Barcode] {
			seen[s.Barcode] = true
			names = append(names, s.Barcode)
		}
	}
	return names
}
