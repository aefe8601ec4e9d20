package main

import (
	"fmt"
	"os"
	"regexp"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jcalabro/sketch"
)

const ipv4Pattern = `\b(?:\d{1,3}\.){3}\d{1,3}\b`

var (
	distinctPattern   string
	distinctPrecision uint8
)

// distinctCmd represents the distinct command
var distinctCmd = &cobra.Command{
	Use:   "distinct <logfile>",
	Short: "Estimate the number of distinct tokens in a file",
	Long: `Scans a file line by line, extracts every token matching the given
regular expression, and estimates the number of distinct tokens seen.

The default pattern matches IPv4 addresses, so on an access log this
reports approximately how many unique client addresses appear. The
estimate is within a few percent of the true count at the default
precision; raise --precision to tighten it at the cost of memory.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDistinct(args[0])
	},
}

func runDistinct(path string) {
	re, err := regexp.Compile(distinctPattern)
	if err != nil {
		log.Fatal().Err(err).Str("pattern", distinctPattern).Msg("invalid token pattern")
	}

	est, err := sketch.NewEstimator(distinctPrecision)
	if err != nil {
		log.Fatal().Err(err).Uint8("precision", distinctPrecision).Msg("could not create estimator")
	}

	file, err := os.Open(path)
	if err != nil {
		log.Fatal().Err(err).Msg("could not open input")
	}
	defer file.Close()

	log.Debug().Str("file", path).Str("pattern", distinctPattern).Uint8("precision", distinctPrecision).Msg("scanning")

	start := time.Now()
	stats, err := scanDistinct(file, re, est)
	if err != nil {
		log.Fatal().Err(err).Msg("scan failed")
	}
	elapsed := time.Since(start)

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "Lines scanned:\t%d\n", stats.lines)
	fmt.Fprintf(w, "Tokens matched:\t%d\n", stats.tokens)
	fmt.Fprintf(w, "Estimated distinct:\t%.0f\n", est.Estimate())
	fmt.Fprintf(w, "Elapsed:\t%v\n", elapsed.Truncate(time.Millisecond))
	w.Flush()
}

func init() {
	distinctCmd.Flags().StringVar(&distinctPattern, "pattern", ipv4Pattern, "regular expression for tokens to count")
	distinctCmd.Flags().Uint8Var(&distinctPrecision, "precision", 14, "estimator precision (4-24), higher is more accurate")
	rootCmd.AddCommand(distinctCmd)
}
