// Command passdiag predicts satellite passes for one observer from
// element-set text, without the HTTP service.
//
//	passdiag -tle stations.txt -lat 40.7128 -lon -74.006 -min-el 10
//	curl -s "$URL" | passdiag -lat 51.5 -lon -0.12 -next
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/star/passwatch/internal/logging"
	"github.com/star/passwatch/internal/tle"
	"github.com/star/passwatch/internal/transform"
	"github.com/star/passwatch/internal/visibility"
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9D4EDD")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("60"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E84A27"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7B2CBF")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("passdiag", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		tlePath = fs.String("tle", "-", "element-set file, - for stdin")
		lat     = fs.Float64("lat", math.NaN(), "observer latitude in degrees (required)")
		lon     = fs.Float64("lon", math.NaN(), "observer longitude in degrees (required)")
		alt     = fs.Float64("alt", 0, "observer height in km")
		minEl   = fs.Float64("min-el", visibility.DefaultMinElevation, "minimum elevation in degrees")
		at      = fs.String("at", "", "RFC3339 start of the 24h window (default now)")
		next    = fs.Bool("next", false, "find the next pass, relaxing the threshold 25°, 15°, 5°")
		workers = fs.Int("workers", 0, "concurrent satellite scans (default NumCPU)")
		verbose = fs.Bool("v", false, "debug logging to stderr")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	fail := func(format string, a ...any) int {
		fmt.Fprintln(stderr, errorStyle.Render("error: "+fmt.Sprintf(format, a...)))
		return 1
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, closer, err := logging.New(stderr, logging.Options{Level: level})
	if err != nil {
		return fail("%v", err)
	}
	defer closer.Close()

	obs, err := transform.NewObserver(*lat, *lon, *alt)
	if err != nil {
		return fail("%v", err)
	}

	now := time.Now().UTC()
	if *at != "" {
		if now, err = time.Parse(time.RFC3339, *at); err != nil {
			return fail("invalid -at %q: %v", *at, err)
		}
	}

	text, err := readInput(*tlePath, stdin)
	if err != nil {
		return fail("reading element sets: %v", err)
	}
	sets := tle.ParseElementSets(text)
	if len(sets) == 0 {
		return fail("no element sets in input")
	}

	engine := visibility.NewEngine(visibility.Config{Workers: *workers}, logger)
	fmt.Fprintln(stdout, mutedStyle.Render(fmt.Sprintf("%d element sets, observer %.4f°, %.4f°, %.3f km, window %s + 24h",
		len(sets), obs.LatDeg, obs.LonDeg, obs.HeightKm, now.Format(time.RFC3339))))

	ctx := context.Background()
	if *next {
		res, err := engine.FindNextPassAt(ctx, sets, obs, now)
		if err != nil {
			return fail("%v", err)
		}
		if !res.Found {
			fmt.Fprintln(stdout, titleStyle.Render(fmt.Sprintf("No pass above %g° in the next 24h", res.MinElevation)))
			return 0
		}
		fmt.Fprintln(stdout, titleStyle.Render(fmt.Sprintf("Next pass (min elevation %g°)", res.MinElevation)))
		fmt.Fprintln(stdout, renderPasses([]visibility.Pass{*res.Pass}))
		return 0
	}

	passes, err := engine.ScanPassesAt(ctx, sets, obs, *minEl, now)
	if err != nil {
		if errors.Is(err, visibility.ErrInvalidThreshold) {
			return fail("%v", err)
		}
		return fail("scan failed: %v", err)
	}
	fmt.Fprintln(stdout, titleStyle.Render(fmt.Sprintf("%d passes at or above %g°", len(passes), *minEl)))
	if len(passes) > 0 {
		fmt.Fprintln(stdout, renderPasses(passes))
	}
	return 0
}

func readInput(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func renderPasses(passes []visibility.Pass) string {
	rows := make([][]string, len(passes))
	for i, p := range passes {
		rows[i] = []string{
			p.Time.UTC().Format("2006-01-02 15:04:05"),
			p.SatelliteName,
			strconv.Itoa(p.NORADID),
			fmt.Sprintf("%.1f", p.ElevationDeg),
			fmt.Sprintf("%.1f", p.AzimuthDeg),
			fmt.Sprintf("%.0f", p.RangeKm),
		}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("TIME (UTC)", "SATELLITE", "NORAD", "EL°", "AZ°", "RANGE KM").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}
