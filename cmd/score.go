package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/sdi-cli/internal/sdi"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one segment's distress metrics",
	Long: `Compute SDI1 to SDI4 and the condition class for a single set of
segment metrics, without any geometry.

Examples:
  # 15% cracked, 4 mm cracks, 12 potholes, 2 cm rutting
  score --cracked 15 --crack-width 4 --potholes 12 --rutting 2

  # JSON output
  score --cracked 5 --json`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.Float64("cracked", 0, "percent of segment area cracked (0-100)")
	f.Float64("crack-width", 0, "mean crack width in mm")
	f.Int("potholes", 0, "pothole count")
	f.Float64("rutting", 0, "mean rutting depth in cm")
	f.Bool("json", false, "print the score as JSON")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	var in sdi.Inputs
	in.PercentCrackedArea, _ = f.GetFloat64("cracked")
	in.MeanCrackWidthMM, _ = f.GetFloat64("crack-width")
	in.PotholeCount, _ = f.GetInt("potholes")
	in.MeanRuttingDepthCM, _ = f.GetFloat64("rutting")
	asJSON, _ := f.GetBool("json")

	return writeScore(os.Stdout, in, sdi.Compute(in), asJSON)
}

func writeScore(out io.Writer, in sdi.Inputs, s sdi.Score, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Inputs sdi.Inputs `json:"inputs"`
			Score  sdi.Score  `json:"score"`
		}{in, s})
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "SDI1 (cracking extent):\t%g\n", s.SDI1)
	_, _ = fmt.Fprintf(w, "SDI2 (crack width):\t%g\n", s.SDI2)
	_, _ = fmt.Fprintf(w, "SDI3 (potholes):\t%g\n", s.SDI3)
	_, _ = fmt.Fprintf(w, "SDI4 (rutting):\t%g\n", s.SDI4)
	_, _ = fmt.Fprintf(w, "Condition:\t%s\n", s.Condition)
	return w.Flush()
}
