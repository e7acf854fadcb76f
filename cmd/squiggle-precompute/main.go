// squiggle-precompute converts a FASTA reference and a 9-mer pore model
// into the flat little-endian int16 signal file internal/refstore expects.
// Peripheral to the running device (spec.md §1): grounded on
// original_source's r10_simulation.rs (parse_kmer_record, convert_to_signal),
// re-expressed with stdlib FASTA scanning - see DESIGN.md for why no
// FASTA-parsing library from the pack was adopted here.
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// samplesPerBase mirrors original_source's fixed ratio: sample_rate (4000)
// divided by bases-per-second (400).
const samplesPerBase = 10

// kmerLength is the pore model's k-mer width.
const kmerLength = 9

// r10Profile is the digitisation/range pair original_source's
// get_sim_profile returns for SimType::R10.
type r10Profile struct {
	digitisation float64
	rng          float64
}

var promethionR10 = r10Profile{digitisation: 2048.0, rng: 200.0}

func main() {
	fastaPath := flag.String("fasta", "", "input FASTA file (single or multi-record)")
	modelPath := flag.String("model", "", "k-mer pore model file: whitespace-separated <kmer> <value> per line")
	outPath := flag.String("out", "", "output signal file (flat little-endian int16)")
	flag.Parse()

	if *fastaPath == "" || *modelPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: squiggle-precompute -fasta ref.fa -model kmers.txt -out ref.squiggle")
		os.Exit(2)
	}

	kmers, err := loadKmerModel(*modelPath)
	if err != nil {
		log.Fatalf("loading kmer model: %v", err)
	}

	seq, err := readFirstFastaSequence(*fastaPath)
	if err != nil {
		log.Fatalf("reading fasta: %v", err)
	}

	signal, err := convertToSignal(seq, kmers, promethionR10)
	if err != nil {
		log.Fatalf("converting to signal: %v", err)
	}

	if err := writeSignal(*outPath, signal); err != nil {
		log.Fatalf("writing signal: %v", err)
	}

	fmt.Printf("wrote %d samples (%d bases) to %s\n", len(signal), len(seq), *outPath)
}

// loadKmerModel parses "<kmer><whitespace><value>" lines into a lookup
// table, matching original_source's parse_kmers grammar.
func loadKmerModel(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	kmers := make(map[string]float64)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		kmers[strings.ToUpper(fields[0])] = value
	}
	return kmers, scanner.Err()
}

// readFirstFastaSequence reads the first record's sequence from a FASTA
// file: a header line starting with '>' followed by sequence lines until
// the next header or EOF.
func readFirstFastaSequence(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	started := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, ">") {
			if started {
				break
			}
			started = true
			continue
		}
		if started {
			buf.WriteString(strings.TrimSpace(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if buf.Len() == 0 {
		return "", fmt.Errorf("no sequence found in %s", path)
	}
	return buf.String(), nil
}

var bases = []byte{'A', 'C', 'G', 'T'}

// normalize upper-cases the sequence, maps U to T, and replaces anything
// outside ACGT with a uniformly random base - original_source's
// normalize/replace_char_with_base, collapsed into one pass since this
// tool only ever needs the final base string.
func normalize(seq string, rng *rand.Rand) []byte {
	out := make([]byte, 0, len(seq))
	for i := 0; i < len(seq); i++ {
		c := seq[i]
		switch {
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		}
		if c == 'U' {
			c = 'T'
		}
		switch c {
		case 'A', 'C', 'G', 'T':
			out = append(out, c)
		default:
			out = append(out, bases[rng.Intn(len(bases))])
		}
	}
	return out
}

// convertToSignal slides a kmerLength window across the normalized
// sequence, looks up each k-mer's pore-model value, scales it by the
// profile's digitisation/range, and emits samplesPerBase copies per base -
// exactly original_source's convert_to_signal.
func convertToSignal(seq string, kmers map[string]float64, profile r10Profile) ([]int16, error) {
	rng := rand.New(rand.NewSource(1))
	bases := normalize(seq, rng)
	if len(bases) < kmerLength {
		return nil, fmt.Errorf("sequence shorter than kmer length %d", kmerLength)
	}

	numKmers := len(bases) - kmerLength + 1
	signal := make([]int16, 0, numKmers*samplesPerBase)

	for i := 0; i < numKmers; i++ {
		kmer := string(bases[i : i+kmerLength])
		value, ok := kmers[kmer]
		if !ok {
			return nil, fmt.Errorf("no pore-model value for kmer %s", kmer)
		}
		x := int16((value * profile.digitisation) / profile.rng)
		for j := 0; j < samplesPerBase; j++ {
			signal = append(signal, x)
		}
	}
	return signal, nil
}

func writeSignal(path string, signal []int16) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	buf := make([]byte, 2)
	for _, s := range signal {
		binary.LittleEndian.PutUint16(buf, uint16(s))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return w.Flush()
}
