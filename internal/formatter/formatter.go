// package formatter renders sync run reports in various formats (JSON, CSV, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/mlsync/internal/shared"
	"github.com/desertthunder/mlsync/internal/tasks"
)

// Format is a report output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "txt"
)

// ParseFormat validates a format name. An empty name selects JSON.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatText:
		return f, nil
	case "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unsupported report format %q", shared.ErrInvalidArgument, name)
	}
}

// PassReport is the serialized form of a pass.
type PassReport struct {
	GroupID  string `json:"group_id"`
	ListID   string `json:"list_id"`
	Approved bool   `json:"approved"`
	Scanned  int    `json:"scanned"`
	Added    int    `json:"added"`
	Batches  []int  `json:"batches"`
	Failures int    `json:"failed_batches"`
	Error    string `json:"error,omitempty"`
}

// CampaignReport is the serialized form of a campaign result.
type CampaignReport struct {
	CampaignID      string       `json:"campaign_id"`
	State           string       `json:"state"`
	ApprovedAdded   int          `json:"approved_added"`
	RegisteredAdded int          `json:"registered_added"`
	Pruned          int          `json:"pruned"`
	FailedBatches   int          `json:"failed_batches"`
	Error           string       `json:"error,omitempty"`
	Passes          []PassReport `json:"passes"`
}

// RunReport is the serialized form of a run.
type RunReport struct {
	RunID       string           `json:"run_id"`
	DryRun      bool             `json:"dry_run"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	Failed      int              `json:"failed_campaigns"`
	Campaigns   []CampaignReport `json:"campaigns"`
}

// NewRunReport flattens a run result for serialization.
func NewRunReport(run *tasks.RunResult) RunReport {
	report := RunReport{
		RunID:       run.RunID,
		DryRun:      run.DryRun,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Failed:      run.Failed(),
		Campaigns:   make([]CampaignReport, 0, len(run.Campaigns)),
	}

	for _, c := range run.Campaigns {
		cr := CampaignReport{
			CampaignID:      c.CampaignID,
			State:           c.State.String(),
			ApprovedAdded:   c.ApprovedAdded,
			RegisteredAdded: c.RegisteredAdded,
			Pruned:          c.Pruned,
			FailedBatches:   c.FailedBatches(),
			Passes:          make([]PassReport, 0, len(c.Passes)),
		}
		if c.Err != nil {
			cr.Error = c.Err.Error()
		}
		for _, p := range c.Passes {
			pr := PassReport{
				GroupID:  p.GroupID,
				ListID:   p.ListID,
				Approved: p.Approved,
				Scanned:  p.Scanned,
				Added:    p.Added,
				Batches:  p.Batches,
				Failures: p.ListFailures + p.AggregateFailures,
			}
			if pr.Batches == nil {
				pr.Batches = []int{}
			}
			if p.Err != nil {
				pr.Error = p.Err.Error()
			}
			cr.Passes = append(cr.Passes, pr)
		}
		report.Campaigns = append(report.Campaigns, cr)
	}
	return report
}

// ReportToJSON renders an indented JSON report
func ReportToJSON(run *tasks.RunResult) ([]byte, error) {
	data, err := json.MarshalIndent(NewRunReport(run), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// ReportToCSV renders one row per campaign with columns: Run, Campaign, State, Approved Added, Registered Added, Pruned, Failed Batches, Error
func ReportToCSV(run *tasks.RunResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Run", "Campaign", "State", "Approved Added", "Registered Added", "Pruned", "Failed Batches", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, c := range NewRunReport(run).Campaigns {
		record := []string{
			run.RunID,
			c.CampaignID,
			c.State,
			strconv.Itoa(c.ApprovedAdded),
			strconv.Itoa(c.RegisteredAdded),
			strconv.Itoa(c.Pruned),
			strconv.Itoa(c.FailedBatches),
			c.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ReportToText renders a plain text report
func ReportToText(run *tasks.RunResult) ([]byte, error) {
	var buf bytes.Buffer

	mode := ""
	if run.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(&buf, "Run: %s%s\n", run.RunID, mode)
	fmt.Fprintf(&buf, "Campaigns: %d (%d failed)\n", len(run.Campaigns), run.Failed())
	if !run.CompletedAt.IsZero() {
		fmt.Fprintf(&buf, "Duration: %s\n", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	buf.WriteString("\n")

	for i, c := range NewRunReport(run).Campaigns {
		fmt.Fprintf(&buf, "%d. %s [%s]\n", i+1, c.CampaignID, c.State)
		fmt.Fprintf(&buf, "   approved added: %d, registered added: %d, pruned: %d, failed batches: %d\n",
			c.ApprovedAdded, c.RegisteredAdded, c.Pruned, c.FailedBatches)
		if c.Error != "" {
			fmt.Fprintf(&buf, "   error: %s\n", c.Error)
		}
		for _, p := range c.Passes {
			kind := "registered"
			if p.Approved {
				kind = "approved"
			}
			fmt.Fprintf(&buf, "   - %s group %s → list %s: %d scanned, %d added", kind, p.GroupID, p.ListID, p.Scanned, p.Added)
			if p.Error != "" {
				fmt.Fprintf(&buf, " (%s)", p.Error)
			}
			buf.WriteString("\n")
		}
	}

	return buf.Bytes(), nil
}

// Render renders run in the given format.
func Render(run *tasks.RunResult, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return ReportToJSON(run)
	case FormatCSV:
		return ReportToCSV(run)
	case FormatText:
		return ReportToText(run)
	default:
		return nil, fmt.Errorf("%w: unsupported report format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteReport renders run to w.
func WriteReport(w io.Writer, run *tasks.RunResult, format Format) error {
	data, err := Render(run, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteReportFile renders run to path.
func WriteReportFile(path string, run *tasks.RunResult, format Format) error {
	data, err := Render(run, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}
