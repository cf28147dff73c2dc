package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/sells-group/lead-cli/internal/message"
	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/pipeline"
	"github.com/sells-group/lead-cli/internal/router"
)

// formatRunResult writes per-source and total counters to out.
func formatRunResult(out io.Writer, res *pipeline.RunResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tPROCESSED\tQUALIFIED\tDISCARDED\tDUPLICATES\tREJECTED\tERRORS\tSTATUS")
	_, _ = fmt.Fprintln(w, "------\t---------\t---------\t---------\t----------\t--------\t------\t------")

	for _, sr := range res.Sources {
		status := "ok"
		if sr.Err != nil {
			status = "failed"
		}
		writeCounters(w, sr.Source, sr.Counters, status)
	}
	writeCounters(w, "TOTAL", res.Total, truncateID(res.RunID))
	_ = w.Flush()
}

func writeCounters(w io.Writer, name string, c pipeline.Counters, status string) {
	_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
		name, c.Processed, c.Qualified, c.Discarded, c.Duplicates, c.Rejected, c.Errors, status)
}

// formatLeads writes a tabular lead list to out.
func formatLeads(out io.Writer, leads []model.Lead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCORE\tSTATUS\tPLATFORM\tNAME\tKEY")
	_, _ = fmt.Fprintln(w, "-----\t------\t--------\t----\t---")

	for _, l := range leads {
		score := "-"
		if l.Scored() {
			score = strconv.FormatFloat(l.Score(), 'f', -1, 64)
		}
		name := l.DisplayName
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", score, l.Status, l.Platform, name, l.IdentityKey)
	}
	_ = w.Flush()
}

// formatRescore writes one rescore outcome to out.
func formatRescore(out io.Writer, res router.RescoreResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	prev := "-"
	if res.Previous != nil {
		prev = strconv.FormatFloat(*res.Previous, 'f', -1, 64)
	}
	_, _ = fmt.Fprintf(w, "Lead:\t%s\n", res.Lead.IdentityKey)
	_, _ = fmt.Fprintf(w, "Score:\t%s -> %s\n", prev, strconv.FormatFloat(res.Lead.Score(), 'f', -1, 64))
	_, _ = fmt.Fprintf(w, "Store:\t%s -> %s\n", res.From, res.To)
	_, _ = fmt.Fprintf(w, "Rationale:\t%s\n", res.Lead.Rationale)
	_ = w.Flush()
}

// formatMessageCounters writes generation counters to out.
func formatMessageCounters(out io.Writer, c message.Counters) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Generated:\t%d\n", c.Generated)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", c.Failed)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", c.Skipped)
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
