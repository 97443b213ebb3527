package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/term"

	"appraisal/internal/appraisal"
	"appraisal/internal/archive"
	"appraisal/internal/config"
	"appraisal/internal/database"
	"appraisal/internal/geo"
	"appraisal/internal/report"
)

var (
	configFile = flag.String("config", "", "Analysis configuration JSON file")
	source     = flag.String("source", "file", "Property source: oracle, postgres or file")
	dataPath   = flag.String("file", "", "Directory holding the property data files (file source)")
	sub        = flag.String("sub", "", "Only analyse this subdivision")
	limit      = flag.Int("limit", 0, "Maximum number of properties to load (0 for all)")
	layersDir  = flag.String("layers", "", "Directory of neighbourhood or zoning shapefiles")
	layerAttr  = flag.String("layer-attr", "", "Polygon attribute holding the neighbourhood name")
	chartsDir  = flag.String("charts", "", "Write PNG charts to this directory")
	archiveDB  = flag.String("archive", "", "Results archive (SQLite); 'none' to skip archiving")
	label      = flag.String("label", "", "Label stored with the archived run")
	browse     = flag.Bool("browse", false, "Browse flagged properties interactively")
	listRuns   = flag.Int("list-runs", 0, "List the most recent archived runs and exit")
	showRun    = flag.String("show-run", "", "Print an archived run and exit")
)

func main() {
	flag.Parse()

	// A missing .env is normal; variables may come from the environment.
	_ = config.LoadEnvFile(".env")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	colour := term.IsTerminal(int(os.Stdout.Fd()))

	store, err := openArchive()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	if *listRuns > 0 || *showRun != "" {
		if store == nil {
			return errors.New("no archive to read from")
		}
		if *showRun != "" {
			res, err := store.GetRun(ctx, *showRun)
			if err != nil {
				return err
			}
			report.Render(os.Stdout, res, colour)
			return nil
		}
		return printRuns(ctx, store, *listRuns)
	}

	analysis := &config.AnalysisConfig{}
	if *configFile != "" {
		if analysis, err = config.LoadAnalysisConfig(*configFile); err != nil {
			return err
		}
	}

	src, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	loadStart := time.Now()
	props, err := src.Properties(ctx, database.Filter{Subdivision: *sub, Limit: *limit})
	if err != nil {
		return fmt.Errorf("failed to load properties: %w", err)
	}
	fmt.Printf("Properties loaded in %v (%d records)\n", time.Since(loadStart).Truncate(time.Millisecond), len(props))
	if len(props) == 0 {
		return errors.New("no properties matched")
	}

	if *layersDir != "" {
		layers, err := geo.LoadLayers(*layersDir)
		if err != nil {
			return err
		}
		attrs := geo.DefaultAttributes
		if *layerAttr != "" {
			attrs = []string{*layerAttr}
		}
		var untagged int
		props, untagged = geo.TagNeighborhoods(props, layers, attrs...)
		fmt.Printf("Tagged neighbourhoods from %d layers (%d properties untagged)\n", len(layers), untagged)
	}

	res, err := appraisal.Perform(analysis.ToAnalysisConfig(props))
	if err != nil {
		return err
	}
	report.Render(os.Stdout, res, colour)

	if store != nil {
		runLabel := *label
		if runLabel == "" {
			runLabel = *sub
		}
		if err := store.SaveRun(ctx, runLabel, res); err != nil {
			return err
		}
		fmt.Printf("Run %s archived\n", res.RunID)
	}

	if *chartsDir != "" {
		files, err := report.WriteCharts(*chartsDir, res, props)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Printf("Chart written: %s\n", f)
		}
	}

	flagged := report.FlagProperties(res, props)
	fmt.Printf("%d properties flagged for review\n", len(flagged))
	if len(flagged) == 0 {
		return nil
	}
	if *browse && term.IsTerminal(int(os.Stdin.Fd())) {
		interactiveSelect(flagged, colour)
		return nil
	}
	for i, f := range flagged {
		if i == 20 {
			fmt.Printf("... and %d more (use -browse)\n", len(flagged)-i)
			break
		}
		fmt.Println(f.Summary())
	}
	return nil
}

func openSource(ctx context.Context) (database.PropertySource, error) {
	switch *source {
	case "oracle":
		return database.NewOracle(ctx, database.LoadDatabaseConfig())
	case "postgres":
		url := config.GetEnvOrDefault(config.EnvPostgresURL, "")
		if url == "" {
			return nil, fmt.Errorf("%s is not set", config.EnvPostgresURL)
		}
		return database.NewPostgres(ctx, url)
	case "file":
		dir := *dataPath
		if dir == "" {
			dir = config.GetEnvOrDefault(config.EnvDataDir, "data")
		}
		return database.NewFileSource(dir), nil
	default:
		return nil, fmt.Errorf("unknown source %q", *source)
	}
}

func openArchive() (*archive.Store, error) {
	path := *archiveDB
	if path == "" {
		path = config.GetEnvOrDefault(config.EnvArchive, config.DefaultArchivePath)
	}
	if path == "none" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}
	return archive.Open(path)
}

func printRuns(ctx context.Context, store *archive.Store, n int) error {
	runs, err := store.ListRuns(ctx, n)
	if err != nil {
		return err
	}
	fmt.Printf("%-36s  %-19s  %-16s %6s %8s %7s %7s %s\n", "run", "started", "label", "sales", "median", "COD", "PRD", "IAAO")
	for _, r := range runs {
		fmt.Printf("%-36s  %-19s  %-16.16s %6d %8s %7s %7s %s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Label, r.Sales,
			optional(r.MedianRatio, "%.3f"), optional(r.COD, "%.2f"), optional(r.PRD, "%.3f"), compliance(r.IAAOCompliant))
	}
	return nil
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func compliance(v *bool) string {
	switch {
	case v == nil:
		return "-"
	case *v:
		return "PASS"
	default:
		return "FAIL"
	}
}
