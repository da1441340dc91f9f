package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// ParseElementSets splits raw 3-line text into element sets.
// Lines are trimmed and blank lines dropped; every complete name/line1/line2
// triplet becomes one record in input order. A trailing group of one or two
// lines is discarded. Line contents are not validated here.
func ParseElementSets(raw string) []ElementSet {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	var sets []ElementSet
	for i := 0; i+2 < len(lines); i += 3 {
		sets = append(sets, ElementSet{
			Name:  lines[i],
			Line1: lines[i+1],
			Line2: lines[i+2],
		})
	}
	return sets
}

// Parse reads 3-line NORAD TLE data from r, validating line prefixes and epochs.
// Malformed entries are skipped with a warning log; after a prefix mismatch the
// parser resynchronises one line at a time.
func Parse(r io.Reader, logger *slog.Logger) ([]ElementSet, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var sets []ElementSet
	for i := 0; i+2 < len(lines); {
		set := ElementSet{Name: lines[i], Line1: lines[i+1], Line2: lines[i+2]}

		if !strings.HasPrefix(set.Line1, "1 ") || !strings.HasPrefix(set.Line2, "2 ") {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", set.Name)
			i++
			continue
		}

		if set.NORADID() == 0 {
			logger.Warn("skipping TLE entry with invalid NORAD ID", "name", set.Name)
			i += 3
			continue
		}

		if _, err := set.Epoch(); err != nil {
			logger.Warn("skipping TLE entry with invalid epoch", "name", set.Name, "error", err)
			i += 3
			continue
		}

		sets = append(sets, set)
		i += 3
	}

	return sets, nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", dayOfYear)
	}

	// dayOfYear is 1-based.
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
