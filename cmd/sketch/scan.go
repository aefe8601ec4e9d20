package main

import (
	"bufio"
	"io"
	"regexp"

	"github.com/jcalabro/sketch"
)

// Log lines can exceed bufio's 64KB default.
const maxLineBytes = 1024 * 1024

type distinctStats struct {
	lines  uint64
	tokens uint64
}

// scanDistinct feeds every pattern match in r to the estimator.
func scanDistinct(r io.Reader, re *regexp.Regexp, est *sketch.Estimator) (distinctStats, error) {
	var stats distinctStats

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		stats.lines++
		for _, tok := range re.FindAll(sc.Bytes(), -1) {
			est.Add(tok)
			stats.tokens++
		}
	}
	return stats, sc.Err()
}

type dedupeStats struct {
	total     uint64
	unique    uint64
	duplicate uint64
	blank     uint64
}

// scanDedupe writes each line of r to w the first time it is seen.
// Blank lines are not deduplicated; they are counted and dropped.
func scanDedupe(r io.Reader, w io.Writer, f *sketch.Filter) (dedupeStats, error) {
	var stats dedupeStats

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	bw := bufio.NewWriter(w)
	for sc.Scan() {
		stats.total++
		line := sc.Text()
		if line == "" {
			stats.blank++
			continue
		}
		if f.TestAndAddString(line) {
			stats.duplicate++
			continue
		}
		stats.unique++
		if _, err := bw.WriteString(line); err != nil {
			return stats, err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return stats, err
		}
	}
	if err := sc.Err(); err != nil {
		return stats, err
	}
	return stats, bw.Flush()
}
