package output

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pmatheus/nsrl-filter/internal/models"
)

// Report is everything PrintSummary shows about a run
type Report struct {
	Summary     models.Snapshot
	UniqueKnown int
	Elapsed     time.Duration
	Paths       Paths
	// Rows written to each output, header excluded
	KnownRows   int64
	UnknownRows int64
	// Partial lists output files left unfinished by an aborted run
	Partial []string
}

// PrintSummary writes a human-readable account of the run to w
func PrintSummary(w io.Writer, r Report) {
	s := r.Summary
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	fmt.Fprintln(w)
	bold.Fprintln(w, "Summary")
	fmt.Fprintf(w, "  Records processed:  %s\n", humanize.Comma(s.Total))
	green.Fprintf(w, "  Known:              %s%s\n", humanize.Comma(s.Known), percent(s.Known, s.Total))
	fmt.Fprintf(w, "  Unknown:            %s%s\n", humanize.Comma(s.Unknown), percent(s.Unknown, s.Total))
	fmt.Fprintf(w, "  Duplicate known:    %s%s\n", humanize.Comma(s.Duplicate), percent(s.Duplicate, s.Total))
	fmt.Fprintf(w, "  Unique known:       %s\n", humanize.Comma(int64(r.UniqueKnown)))
	fmt.Fprintf(w, "  Empty hashes:       %s%s\n", humanize.Comma(s.Empty), percent(s.Empty, s.Total))

	if s.Malformed > 0 {
		yellow.Fprintf(w, "  Malformed skipped:  %s\n", humanize.Comma(s.Malformed))
	}
	if s.Filtered > 0 {
		fmt.Fprintf(w, "  Filtered out:       %s\n", humanize.Comma(s.Filtered))
	}
	if s.Errored > 0 {
		red.Fprintf(w, "  Not classified:     %s\n", humanize.Comma(s.Errored))
	}
	if s.QueryRetries > 0 {
		yellow.Fprintf(w, "  Query retries:      %s\n", humanize.Comma(s.QueryRetries))
	}

	fmt.Fprintf(w, "  Elapsed:            %s\n", r.Elapsed.Round(time.Millisecond))
	if secs := r.Elapsed.Seconds(); secs > 0 && s.Total > 0 {
		fmt.Fprintf(w, "  Throughput:         %s records/s\n", humanize.Comma(int64(float64(s.Total)/secs)))
	}

	if len(r.Partial) > 0 {
		fmt.Fprintln(w)
		red.Fprintln(w, "Run aborted; output is incomplete:")
		for _, p := range r.Partial {
			fmt.Fprintf(w, "  %s\n", p)
		}
		return
	}

	if r.Paths.Known != "" {
		fmt.Fprintln(w)
		bold.Fprintln(w, "Output")
		fmt.Fprintf(w, "  known:   %s (%s rows)\n", r.Paths.Known, humanize.Comma(r.KnownRows))
		fmt.Fprintf(w, "  unknown: %s (%s rows)\n", r.Paths.Unknown, humanize.Comma(r.UnknownRows))
	}
}

func percent(n, total int64) string {
	if total == 0 {
		return ""
	}
	return fmt.Sprintf(" (%.1f%%)", float64(n)*100/float64(total))
}
