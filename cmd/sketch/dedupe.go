package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jcalabro/sketch"
)

var (
	dedupeExpected uint64
	dedupeFPRate   float64
	dedupeCapacity uint64
	dedupeHashes   uint32
)

// dedupeCmd represents the dedupe command
var dedupeCmd = &cobra.Command{
	Use:   "dedupe <file>",
	Short: "Drop duplicate lines from a file using constant memory",
	Long: `Streams a file line by line and writes each line to stdout the first
time it is seen. Later occurrences are dropped. Blank lines are never
written.

Membership is tracked with a bloom filter, so memory stays constant no
matter how large the input is. The tradeoff is a small chance that a
never-seen line is wrongly dropped as a duplicate; size the filter for
your input with --expected and --fp-rate, or set the geometry directly
with --capacity and --hashes.

The summary table goes to stderr so stdout stays pipeable.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDedupe(cmd, args[0])
	},
}

func newDedupeFilter(cmd *cobra.Command) (*sketch.Filter, error) {
	if cmd.Flags().Changed("capacity") || cmd.Flags().Changed("hashes") {
		return sketch.NewFilter(dedupeCapacity, dedupeHashes)
	}
	return sketch.NewFilterWithEstimates(dedupeExpected, dedupeFPRate)
}

func runDedupe(cmd *cobra.Command, path string) {
	f, err := newDedupeFilter(cmd)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create filter")
	}

	file, err := os.Open(path)
	if err != nil {
		log.Fatal().Err(err).Msg("could not open input")
	}
	defer file.Close()

	log.Debug().Str("file", path).Uint64("capacity_bits", f.Cap()).Uint32("hashes", f.K()).Msg("deduplicating")

	start := time.Now()
	stats, err := scanDedupe(file, os.Stdout, f)
	if err != nil {
		log.Fatal().Err(err).Msg("scan failed")
	}
	elapsed := time.Since(start)

	w := tabwriter.NewWriter(os.Stderr, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "Lines read:\t%d\n", stats.total)
	fmt.Fprintf(w, "Unique:\t%d\n", stats.unique)
	fmt.Fprintf(w, "Duplicates dropped:\t%d\n", stats.duplicate)
	fmt.Fprintf(w, "Blank skipped:\t%d\n", stats.blank)
	fmt.Fprintf(w, "Estimated FP rate:\t%.4f%%\n", f.EstimatedFalsePositiveRate()*100)
	fmt.Fprintf(w, "Elapsed:\t%v\n", elapsed.Truncate(time.Millisecond))
	w.Flush()
}

func init() {
	dedupeCmd.Flags().Uint64Var(&dedupeExpected, "expected", 1_000_000, "expected number of distinct lines")
	dedupeCmd.Flags().Float64Var(&dedupeFPRate, "fp-rate", 0.01, "acceptable false positive rate")
	dedupeCmd.Flags().Uint64Var(&dedupeCapacity, "capacity", 0, "filter capacity in bits (overrides --expected/--fp-rate)")
	dedupeCmd.Flags().Uint32Var(&dedupeHashes, "hashes", 7, "number of hash probes when --capacity is set")
	rootCmd.AddCommand(dedupeCmd)
}
