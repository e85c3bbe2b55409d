package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"superstore-dashboard/internal/config"
	"superstore-dashboard/internal/dataset"
	"superstore-dashboard/internal/models"
	"superstore-dashboard/internal/observability"
	"superstore-dashboard/internal/services"
	"superstore-dashboard/internal/ui/templates"
)

type cli struct {
	LogLevel string `default:"warn" enum:"debug,info,warn,error" help:"Log level for diagnostics written to stderr."`

	Summary summaryCmd `cmd:"" help:"Print the sales aggregates of a dataset file."`
	Export  exportCmd  `cmd:"" help:"Write the filtered rows of a dataset file as CSV."`
}

// filterFlags mirror the dashboard widgets.
type filterFlags struct {
	File   string   `arg:"" type:"existingfile" help:"Dataset file (.csv, .txt, .xlsx or .xls)."`
	Start  string   `help:"First order day to include (YYYY-MM-DD). Defaults to the earliest order."`
	End    string   `help:"Last order day to include (YYYY-MM-DD). Defaults to the latest order."`
	Region []string `sep:"none" help:"Restrict to a Region (repeatable)."`
	State  []string `sep:"none" help:"Restrict to a State (repeatable)."`
	City   []string `sep:"none" help:"Restrict to a City (repeatable)."`
}

type summaryCmd struct {
	filterFlags `embed:""`
	Format string `default:"text" enum:"text,json" help:"Output format."`
}

type exportCmd struct {
	filterFlags `embed:""`
	Out string `default:"Processed_Data.csv" help:"Output file, or - for stdout."`
}

// runEnv is bound into every command's Run method.
type runEnv struct {
	ctx    context.Context
	stdout io.Writer
	logger *slog.Logger
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("superstore"),
		kong.Description("Superstore sales reports from the command line."),
		kong.UsageOnError(),
	)

	logger := observability.NewLoggerTo(os.Stderr, config.LoggerConfig{Level: c.LogLevel, Format: "text"})
	err := kctx.Run(&runEnv{
		ctx:    context.Background(),
		stdout: os.Stdout,
		logger: logger,
	})
	kctx.FatalIfErrorf(err)
}

func (f *filterFlags) request() (models.ViewRequest, error) {
	start, err := parseDay("--start", f.Start)
	if err != nil {
		return models.ViewRequest{}, err
	}
	end, err := parseDay("--end", f.End)
	if err != nil {
		return models.ViewRequest{}, err
	}
	return models.ViewRequest{
		Start: start,
		End:   end,
		Selection: models.Selection{
			Regions: f.Region,
			States:  f.State,
			Cities:  f.City,
		},
	}, nil
}

func parseDay(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("superstore: %s %q is not a YYYY-MM-DD date", flag, value)
	}
	return t, nil
}

// view loads the file and runs the dashboard pipeline on it.
func (f *filterFlags) view(rt *runEnv) (*models.View, error) {
	req, err := f.request()
	if err != nil {
		return nil, err
	}
	loader := dataset.NewLoader(dataset.Options{Logger: rt.logger})
	table, err := loader.LoadFile(rt.ctx, f.File)
	if err != nil {
		return nil, fmt.Errorf("superstore: load %s: %w", f.File, err)
	}
	rt.logger.Info("dataset loaded", "file", f.File, "rows", table.Len())
	return services.ComputeView(table, req)
}

func (cmd *summaryCmd) Run(rt *runEnv) error {
	view, err := cmd.view(rt)
	if err != nil {
		return err
	}

	if cmd.Format == "json" {
		enc := json.NewEncoder(rt.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	return writeSummary(rt.stdout, filepath.Base(cmd.File), view)
}

func writeSummary(w io.Writer, name string, view *models.View) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "File:\t%s\n", name)
	if view.HasBounds {
		fmt.Fprintf(tw, "Order dates:\t%s to %s\n", view.Range.Start.Format(time.DateOnly), view.Range.End.Format(time.DateOnly))
	}
	fmt.Fprintf(tw, "Rows:\t%s\n", templates.FormatCount(view.RowCount))
	fmt.Fprintf(tw, "Total sales:\t%s\n", templates.FormatCurrency(view.TotalSales))
	for _, warning := range view.Warnings {
		fmt.Fprintf(tw, "Warning:\t%s\n", warning)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Category\tSales")
	for _, c := range view.CategorySales {
		fmt.Fprintf(tw, "%s\t%s\n", c.Category, templates.FormatCurrency(c.Sales))
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Region\tSales")
	for _, r := range view.RegionSales {
		fmt.Fprintf(tw, "%s\t%s\n", r.Region, templates.FormatCurrency(r.Sales))
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Month\tSales")
	for _, m := range view.MonthlySales {
		fmt.Fprintf(tw, "%s\t%s\n", m.Month, templates.FormatCurrency(m.Sales))
	}

	if len(view.Selection.Regions)+len(view.Selection.States)+len(view.Selection.Cities) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "Filters:\t%s\n", describeSelection(view.Selection))
	}
	return tw.Flush()
}

func describeSelection(sel models.Selection) string {
	var parts []string
	if len(sel.Regions) > 0 {
		parts = append(parts, "region="+strings.Join(sel.Regions, "|"))
	}
	if len(sel.States) > 0 {
		parts = append(parts, "state="+strings.Join(sel.States, "|"))
	}
	if len(sel.Cities) > 0 {
		parts = append(parts, "city="+strings.Join(sel.Cities, "|"))
	}
	return strings.Join(parts, " ")
}

func (cmd *exportCmd) Run(rt *runEnv) error {
	view, err := cmd.view(rt)
	if err != nil {
		return err
	}

	if cmd.Out == "-" {
		return dataset.WriteCSV(rt.stdout, view.Filtered)
	}

	file, err := os.Create(cmd.Out)
	if err != nil {
		return fmt.Errorf("superstore: create %s: %w", cmd.Out, err)
	}
	if err := dataset.WriteCSV(file, view.Filtered); err != nil {
		file.Close()
		return fmt.Errorf("superstore: write %s: %w", cmd.Out, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("superstore: close %s: %w", cmd.Out, err)
	}
	fmt.Fprintf(rt.stdout, "✓ Wrote %d rows to %s\n", view.RowCount, cmd.Out)
	return nil
}
