package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/sdi-cli/internal/api"
	"github.com/sells-group/sdi-cli/internal/model"
	"github.com/sells-group/sdi-cli/internal/report"
	"github.com/sells-group/sdi-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored analysis runs",
	Long:  "Commands for listing, viewing, and summarizing stored SDI runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		location, _ := cmd.Flags().GetString("location")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:   model.RunStatus(status),
			Location: location,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		phases, err := st.ListPhases(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(api.RunDetail{Run: *run, Phases: phases})
	},
}

// -- runs segments --

var runsSegmentsCmd = &cobra.Command{
	Use:   "segments <run-id>",
	Short: "Print the per-segment result table of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		segs, err := st.ListSegments(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs segments")
		}
		formatSegments(os.Stdout, segs)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		location, _ := cmd.Flags().GetString("location")
		runs, err := st.ListRuns(ctx, store.RunFilter{Location: location, Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().String("location", "", "filter by survey location")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().String("location", "", "restrict stats to one survey location")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsSegmentsCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	Running    int
	AvgDurSecs float64
	// MeanSDI is the mean of the completed runs' mean SDI.
	MeanSDI    float64
	Conditions map[model.Condition]int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	s := runStats{Total: len(runs), Conditions: make(map[model.Condition]int)}

	var durations, sdis []float64
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			durations = append(durations, r.UpdatedAt.Sub(r.CreatedAt).Seconds())
			if r.Summary != nil {
				sdis = append(sdis, r.Summary.MeanSDI)
				for c, n := range r.Summary.ConditionCounts {
					s.Conditions[c] += n
				}
			}
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
	}

	if len(durations) > 0 {
		s.AvgDurSecs = stat.Mean(durations, nil)
	}
	if len(sdis) > 0 {
		s.MeanSDI = stat.Mean(sdis, nil)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLOCATION\tSTATUS\tSEGMENTS\tMEAN_SDI\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t--------\t--------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		location := r.Survey.Location
		if len(location) > 30 {
			location = location[:27] + "..."
		}

		segments, meanSDI := "", ""
		if r.Summary != nil {
			segments = fmt.Sprintf("%d", r.Summary.SegmentCount)
			meanSDI = fmt.Sprintf("%.2f", r.Summary.MeanSDI)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			location,
			r.Status,
			segments,
			meanSDI,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatSegments writes a stored result table in export presentation.
func formatSegments(out io.Writer, segs []model.SegmentMetrics) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEG\tSTA\t%CRACK\tWIDTH_MM\tHOLES\tRUT_CM\tSDI1\tSDI2\tSDI3\tSDI4\tCONDITION\tFALLBACKS")
	for _, r := range report.Rows(segs) {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%d\t%.2f\t%g\t%g\t%g\t%.2f\t%s\t%s\n",
			r.Segment, r.STA, r.PercentCrackedArea, r.MeanCrackWidthMM, r.PotholeCount,
			r.MeanRuttingDepthCM, r.SDI1, r.SDI2, r.SDI3, r.SDI4, r.Condition, r.Fallbacks)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	if s.Complete > 0 {
		_, _ = fmt.Fprintf(w, "Mean SDI:\t%.2f\n", s.MeanSDI)
		for _, c := range model.Conditions {
			if n := s.Conditions[c]; n > 0 {
				_, _ = fmt.Fprintf(w, "  %s segments:\t%d\n", c, n)
			}
		}
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
