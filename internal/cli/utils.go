// Package cli provides output formatting for bunmyaku commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/vector"
	"github.com/hyperjump/bunmyaku/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --format flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

const rule = "─────────────────────────────────────────────────────────"

// WriteQueryResults writes a query response to w in the given format.
func WriteQueryResults(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms across %d scopes\n\n", response.Total, response.QueryTime, len(response.Scopes))
	for i, r := range response.Results {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | Tokens: %d\n", i+1, r.Score, r.Tokens)
		fmt.Fprintf(w, "ID: %s\n", r.ID)
		if r.Scope != "" {
			fmt.Fprintf(w, "Scope: %s\n", r.Scope)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteWindow writes an assembled window to w in the given format.
func WriteWindow(w io.Writer, win *models.Window, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, win)
	}
	fmt.Fprintf(w, "\nModel: %s (budget %d)\n", win.Model, win.ModelBudget)
	fmt.Fprintf(w, "Overhead: %d | History: %d of %d tokens | Dropped: %d | Repaired: %d\n",
		win.OverheadTokens, win.HistoryTokens, win.HistoryBudget, win.Dropped, win.Repaired)
	if len(win.Tools) > 0 {
		fmt.Fprintf(w, "Tools:")
		for _, t := range win.Tools {
			fmt.Fprintf(w, " %s", t.Function.Name)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
	for _, m := range win.Messages {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "[%s] %s\n", m.Role, utils.Truncate(m.Content, 200))
	}
	return nil
}

// Status is the summary printed by the status command.
type Status struct {
	Scopes         []vector.ScopeStats `json:"scopes"`
	Conversations  int64               `json:"conversations"`
	DiskUsageBytes int64               `json:"disk_usage_bytes"`
	DataDir        string              `json:"data_dir"`
	DatabasePath   string              `json:"database_path"`
}

// WriteStatus writes s to w in the given format.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Data dir:      %s\n", s.DataDir)
	fmt.Fprintf(w, "Database:      %s\n", s.DatabasePath)
	fmt.Fprintf(w, "Disk usage:    %s\n", FormatBytes(s.DiskUsageBytes))
	fmt.Fprintf(w, "Conversations: %d\n", s.Conversations)
	fmt.Fprintln(w, "Scopes:")
	for _, sc := range s.Scopes {
		if sc.Missing {
			fmt.Fprintf(w, "  %-16s %6s        %s (no snapshot)\n", sc.Scope, "-", sc.Key)
			continue
		}
		fmt.Fprintf(w, "  %-16s %6d items  %s\n", sc.Scope, sc.Items, sc.Key)
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
