package report

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/couchcryptid/noise-monitor-service/internal/domain"
)

// NotAvailable marks a window without samples.
const NotAvailable = "N/A"

// Publisher delivers summaries to an external sink.
type Publisher interface {
	Publish(ctx context.Context, summaries []domain.DailyLeq) error
}

// FormatLevel renders a level with two decimals, or N/A when absent.
func FormatLevel(l domain.Level) string {
	if !l.Valid {
		return NotAvailable
	}
	return fmt.Sprintf("%.2f", l.Value)
}

// WriteTable renders summaries as an aligned Date / Leq_Day / Leq_Night table.
func WriteTable(w io.Writer, summaries []domain.DailyLeq) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Date\tLeq_Day\tLeq_Night")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.DateString(), FormatLevel(s.Day), FormatLevel(s.Night))
	}
	return tw.Flush()
}
