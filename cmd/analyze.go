package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sdi-cli/internal/config"
	"github.com/sells-group/sdi-cli/internal/fetcher"
	"github.com/sells-group/sdi-cli/internal/layer"
	"github.com/sells-group/sdi-cli/internal/model"
	"github.com/sells-group/sdi-cli/internal/pipeline"
	"github.com/sells-group/sdi-cli/internal/raster"
	"github.com/sells-group/sdi-cli/internal/report"
	"github.com/sells-group/sdi-cli/internal/store"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compute per-segment SDI for a surveyed road",
	Long: `Segment a road centerline, measure each distress layer per segment,
derive rutting depth from a DSM, score every segment and write the exports.

Layers are shapefiles (.shp) or zipped shapefiles (.zip), as local paths or
http(s)/ftp URLs. The DSM is a GeoTIFF path, URL or Google Drive share link
and is only needed when a rutting layer is given.

Examples:
  analyze --road road.zip --cracking crack.zip --potholes holes.zip \
    --rutting ruts.zip --dsm https://drive.google.com/file/d/<id>/view

  # Road width 3.5 m, 50 m segments, GeoJSON only, not stored
  analyze --road road.shp --width 3.5 --interval 50 --format geojson --no-store`,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.String("road", "", "road centerline layer (.shp or .zip, path or URL)")
	f.String("cracking", "", "cracking polygon layer")
	f.String("potholes", "", "pothole point or polygon layer")
	f.String("rutting", "", "rutting polygon layer")
	f.String("dsm", "", "DSM GeoTIFF (path, URL or Google Drive link)")
	f.Float64("width", 0, "road width in meters (overrides config)")
	f.Float64("interval", 0, "segment interval in meters (overrides config)")
	f.String("crs", "", "projected CRS for the computation (overrides config)")
	f.Int("concurrency", 0, "segment workers (overrides config)")
	f.String("out", "", "export directory (overrides config)")
	f.StringSlice("format", nil, "export formats: xlsx, geojson, gpkg, png (overrides config)")
	f.Bool("no-store", false, "do not persist the run")
	_ = analyzeCmd.MarkFlagRequired("road")

	rootCmd.AddCommand(analyzeCmd)
}

// analyzeSources are the input references of one analyze invocation.
type analyzeSources struct {
	Road, Cracking, Potholes, Rutting, DSM string
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := applyAnalyzeFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate("analyze"); err != nil {
		return err
	}
	formats, err := report.ParseFormats(cfg.Export.Formats)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	var src analyzeSources
	src.Road, _ = f.GetString("road")
	src.Cracking, _ = f.GetString("cracking")
	src.Potholes, _ = f.GetString("potholes")
	src.Rutting, _ = f.GetString("rutting")
	src.DSM, _ = f.GetString("dsm")
	noStore, _ := f.GetBool("no-store")

	workDir := cfg.Pipeline.WorkDir
	if workDir == "" {
		tmp, err := os.MkdirTemp("", "sdi-*")
		if err != nil {
			return eris.Wrap(err, "analyze: create work dir")
		}
		defer os.RemoveAll(tmp) //nolint:errcheck
		workDir = tmp
	}

	params := runParams(cfg)
	runID := uuid.New().String()
	var st store.Store
	if !noStore {
		st, err = initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		run, err := st.CreateRun(ctx, cfg.Survey, params)
		if err != nil {
			return err
		}
		runID = run.ID
	}

	log := zap.L().With(zap.String("run_id", runID))
	start := time.Now()

	res, paths, err := analyze(ctx, src, workDir, runID, formats)
	if err != nil {
		log.Error("analyze: run failed", zap.Error(err))
	}
	if st != nil {
		if err := recordOutcome(ctx, st, runID, res, err); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}

	log.Info("analyze: run complete",
		zap.Int("segments", res.Summary.SegmentCount),
		zap.Float64("mean_sdi", res.Summary.MeanSDI),
		zap.Duration("elapsed", time.Since(start)),
	)
	writeRunSummary(os.Stdout, runID, res, paths)
	return nil
}

// recordOutcome persists the terminal state of a run. It detaches from ctx so
// an interrupt cannot leave the run marked running. A failed completion is
// recorded as a failure and returned.
func recordOutcome(ctx context.Context, st store.Store, runID string, res *pipeline.Result, runErr error) error {
	ctx = context.WithoutCancel(ctx)
	log := zap.L().With(zap.String("run_id", runID))

	if runErr == nil {
		runErr = st.CompleteRun(ctx, runID, store.Completion{
			Summary: res.Summary,
			Metrics: res.Metrics,
			Phases:  res.Phases,
		})
		if runErr == nil {
			return nil
		}
		log.Error("analyze: record completion", zap.Error(runErr))
	}

	if err := st.FailRun(ctx, runID, runErr.Error()); err != nil {
		log.Warn("analyze: record failure", zap.Error(err))
	}
	return runErr
}

// analyze loads the inputs, runs the pipeline and writes the exports.
func analyze(ctx context.Context, src analyzeSources, workDir, runID string, formats []report.Format) (*pipeline.Result, []string, error) {
	resolver := fetcher.NewResolver(
		fetcher.HTTPOptions{
			UserAgent:    cfg.Fetch.UserAgent,
			Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries:   cfg.Fetch.MaxRetries,
			RateLimiters: fetcher.DefaultRateLimiters(),
		},
		fetcher.FTPOptions{Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second},
	)

	in, closeDSM, err := loadInput(ctx, resolver, src, workDir)
	if err != nil {
		return nil, nil, err
	}
	defer closeDSM()

	res, err := pipeline.New(pipelineOptions(cfg)).Run(ctx, in)
	if err != nil {
		return nil, nil, err
	}

	rep, err := report.FromResult(runID, cfg.Survey, runParams(cfg), res)
	if err != nil {
		return nil, nil, err
	}
	outDir := cfg.Export.Dir
	if outDir == "" {
		outDir = "."
	}
	paths, err := report.Write(ctx, rep, outDir, formats)
	if err != nil {
		return nil, nil, err
	}
	return res, paths, nil
}

// loadInput resolves and reads every layer and opens the DSM. The returned
// func releases the DSM.
func loadInput(ctx context.Context, r *fetcher.Resolver, src analyzeSources, workDir string) (pipeline.Input, func(), error) {
	noop := func() {}
	var in pipeline.Input

	for _, l := range []struct {
		ref        string
		kind       layer.Kind
		defaultCRS string
		dst        *layer.Layer
	}{
		{src.Road, layer.KindRoad, cfg.Road.InputCRS, &in.Road},
		{src.Cracking, layer.KindCracking, cfg.Road.ProjectedCRS, &in.Cracking},
		{src.Potholes, layer.KindPothole, cfg.Road.ProjectedCRS, &in.Potholes},
		{src.Rutting, layer.KindRutting, cfg.Road.ProjectedCRS, &in.Rutting},
	} {
		path := ""
		if l.ref != "" {
			var err error
			path, err = r.Resolve(ctx, l.ref, workDir, string(l.kind)+".zip")
			if err != nil {
				return in, noop, eris.Wrapf(err, "analyze: resolve %s layer", l.kind)
			}
		}
		loaded, err := layer.Load(path, l.kind, l.defaultCRS, workDir)
		if err != nil {
			return in, noop, err
		}
		*l.dst = loaded
	}

	if src.DSM == "" {
		if in.Rutting.Len() > 0 {
			zap.L().Warn("analyze: rutting layer given without a DSM")
		}
		return in, noop, nil
	}
	path, err := r.Resolve(ctx, src.DSM, workDir, "dsm.tif")
	if err != nil {
		return in, noop, eris.Wrap(err, "analyze: resolve DSM")
	}
	dsm, err := raster.OpenGeoTIFF(path)
	if err != nil {
		return in, noop, err
	}
	in.DSM = dsm
	return in, func() { _ = dsm.Close() }, nil
}

// applyAnalyzeFlags copies explicitly set flags over the loaded config.
func applyAnalyzeFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	var err error
	if f.Changed("width") {
		c.Road.WidthM, err = f.GetFloat64("width")
	}
	if err == nil && f.Changed("interval") {
		c.Road.IntervalM, err = f.GetFloat64("interval")
	}
	if err == nil && f.Changed("crs") {
		c.Road.ProjectedCRS, err = f.GetString("crs")
	}
	if err == nil && f.Changed("concurrency") {
		c.Pipeline.Concurrency, err = f.GetInt("concurrency")
	}
	if err == nil && f.Changed("out") {
		c.Export.Dir, err = f.GetString("out")
	}
	if err == nil && f.Changed("format") {
		c.Export.Formats, err = f.GetStringSlice("format")
	}
	return eris.Wrap(err, "analyze: read flags")
}

func pipelineOptions(c *config.Config) pipeline.Options {
	return pipeline.Options{
		RoadWidth:      c.Road.WidthM,
		Interval:       c.Road.IntervalM,
		ProjectedCRS:   c.Road.ProjectedCRS,
		BufferDistance: c.Rutting.BufferDistance,
		UnitScale:      c.Rutting.UnitScale,
		MaxDepthCM:     c.Rutting.MaxDepthCM,
		Concurrency:    c.Pipeline.Concurrency,
	}
}

func runParams(c *config.Config) model.RunParams {
	return model.RunParams{
		RoadWidthM:       c.Road.WidthM,
		SegmentIntervalM: c.Road.IntervalM,
		ProjectedCRS:     c.Road.ProjectedCRS,
		BufferDistance:   c.Rutting.BufferDistance,
		UnitScale:        c.Rutting.UnitScale,
	}
}

// writeRunSummary prints the result table and where the exports went.
func writeRunSummary(out io.Writer, runID string, res *pipeline.Result, paths []string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEG\tSTA\t%CRACK\tWIDTH_MM\tHOLES\tRUT_CM\tSDI\tCONDITION")
	for _, row := range report.Rows(res.Metrics) {
		flag := ""
		if row.Fallbacks != "" {
			flag = " *"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%d\t%.2f\t%.2f\t%s%s\n",
			row.Segment, row.STA, row.PercentCrackedArea, row.MeanCrackWidthMM,
			row.PotholeCount, row.MeanRuttingDepthCM, row.SDI4, row.Condition, flag)
	}
	_ = w.Flush()

	s := res.Summary
	_, _ = fmt.Fprintf(out, "\nRun %s: %d segments, %g m measured, mean SDI %.2f, dominant condition %s\n",
		runID, s.SegmentCount, s.MeasuredLengthM, s.MeanSDI, s.DominantCondition)
	if s.DegradedSegments > 0 {
		_, _ = fmt.Fprintf(out, "%d segment(s) marked * used a fallback value\n", s.DegradedSegments)
	}
	for _, p := range paths {
		_, _ = fmt.Fprintf(out, "wrote %s\n", p)
	}
}
