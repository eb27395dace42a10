package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/config"
	"github.com/dgnsrekt/gexflow/internal/gex"
	"github.com/dgnsrekt/gexflow/internal/replay"
)

type replayOptions struct {
	date      string
	dataDir   string
	from      string
	to        string
	workers   int
	exportDir string
}

func replayCmd() *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded sessions and print the closing analytics",
		Long: `Replay reads <data_dir>/<date>/ for chain snapshots (JSONL) and ticks (CSV),
feeds them through a fresh session in time order and prints the gamma exposure
table, cumulative delta and every alert that fired.

With --from or --to every date folder in the range is replayed concurrently and
a one-line summary per date is printed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.date != "" {
				cfg.Replay.Date = opts.date
			}
			if opts.dataDir != "" {
				cfg.Replay.DataDir = opts.dataDir
			}
			if opts.from != "" || opts.to != "" {
				_, err := runBatch(cmd.Context(), cfg, opts, logger, os.Stdout)
				return err
			}
			_, err := runReplay(cmd.Context(), cfg, opts.exportDir, logger, os.Stdout)
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.date, "date", "d", "", "session date YYYY-MM-DD or \"latest\" (overrides replay.date)")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "recordings root (overrides replay.data_dir)")
	cmd.Flags().StringVar(&opts.from, "from", "", "first date of a batch replay (inclusive)")
	cmd.Flags().StringVar(&opts.to, "to", "", "last date of a batch replay (inclusive)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 4, "concurrent sessions in a batch replay")
	cmd.Flags().StringVar(&opts.exportDir, "export", "", "write candles, footprint and alerts CSVs under this directory")
	return cmd
}

func runReplay(ctx context.Context, cfg *config.Config, exportDir string, logger *zap.Logger, out io.Writer) (*replay.Result, error) {
	dir, date, err := cfg.Replay.ResolveDir()
	if err != nil {
		return nil, err
	}

	res, err := replay.Run(ctx, cfg, dir, date, logger)
	if err != nil {
		return nil, err
	}

	printReport(out, cfg, res)

	if exportDir != "" {
		written, err := replay.Export(exportDir, res)
		if err != nil {
			return nil, fmt.Errorf("exporting: %w", err)
		}
		for _, path := range written {
			fmt.Fprintf(out, "wrote %s\n", path)
		}
	}
	return res, nil
}

func runBatch(ctx context.Context, cfg *config.Config, opts replayOptions, logger *zap.Logger, out io.Writer) (*replay.BatchResult, error) {
	tasks, err := replay.Tasks(cfg.Replay.DataDir, opts.from, opts.to)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no date folders in %s between %q and %q", cfg.Replay.DataDir, opts.from, opts.to)
	}

	start := time.Now()
	batch, err := replay.NewManager(cfg, opts.workers, logger).Execute(ctx, tasks)
	if err != nil {
		return nil, err
	}

	renderBatchTable(out, batch)
	fmt.Fprintf(out, "\n%d sessions, %d ok, %d failed in %s\n",
		batch.Total, batch.Success, batch.Failed, time.Since(start).Round(time.Millisecond))
	for _, e := range batch.Errors {
		fmt.Fprintf(out, "  %s\n", e)
	}

	if opts.exportDir != "" {
		for _, r := range batch.Results {
			if r.Result == nil {
				continue
			}
			if _, err := replay.Export(opts.exportDir, r.Result); err != nil {
				return batch, fmt.Errorf("exporting %s: %w", r.Task.Date, err)
			}
		}
	}

	if batch.Failed > 0 {
		return batch, fmt.Errorf("%d of %d sessions failed", batch.Failed, batch.Total)
	}
	return batch, nil
}

func printReport(out io.Writer, cfg *config.Config, res *replay.Result) {
	sess := res.Session
	status := sess.Status(res.End)

	fmt.Fprintf(out, "%s %s  expiry %s\n", cfg.Instrument.Symbol, res.Date, status.Expiry.Format(time.RFC3339))
	fmt.Fprintf(out, "snapshots %d  ticks %d  skipped %d\n\n", res.Snapshots, res.Ticks, res.Skipped)

	if report, err := sess.GEXRows(); err == nil {
		rows := gex.Window(report.Rows, status.ATMStrike, cfg.Instrument.StrikeInterval, cfg.Instrument.StrikeWindow)
		fmt.Fprintf(out, "Gamma exposure (spot %.2f, ATM %g)\n", report.Spot, status.ATMStrike)
		renderGEXTable(out, rows)
		if wall, err := gex.Wall(report.Rows); err == nil {
			fmt.Fprintf(out, "gamma wall %g (%s)\n", wall.Strike, formatFloat(wall.NetGEX))
		}
		if flip, err := gex.Flip(report.Rows, report.Spot); err == nil {
			fmt.Fprintf(out, "gamma flip %g (crossing %.2f)\n", flip.Strike, flip.Crossing)
		}
		fmt.Fprintf(out, "total net GEX %s\n\n", formatFloat(report.TotalGEX))
	}

	cvd := sess.CVD()
	fmt.Fprintf(out, "CVD %s  buy %s  sell %s  unknown %s\n\n",
		formatFloat(cvd.CumulativeDelta),
		formatFloat(cvd.TotalBuyVolume),
		formatFloat(cvd.TotalSellVolume),
		formatFloat(cvd.UnknownVolume),
	)

	fmt.Fprintf(out, "Alerts (%d)\n", len(res.Alerts))
	if len(res.Alerts) > 0 {
		renderAlertTable(out, res.Alerts)
	}
}

func renderGEXTable(out io.Writer, rows []gex.Row) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Strike", "Call GEX", "Put GEX", "Net GEX", "Call OI", "Put OI"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, r := range rows {
		strike := strconv.FormatFloat(r.Strike, 'f', -1, 64)
		if !r.Complete {
			strike += "*"
		}
		table.Append([]string{
			strike,
			formatFloat(r.CallGEX),
			formatFloat(r.PutGEX),
			formatFloat(r.NetGEX),
			formatFloat(r.CallOI),
			formatFloat(r.PutOI),
		})
	}
	table.Render()
}

func renderAlertTable(out io.Writer, alerts []alert.Alert) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Seq", "Time", "Kind", "Severity", "Message"})
	table.SetAutoWrapText(false)

	for _, a := range alerts {
		table.Append([]string{
			strconv.FormatUint(a.Seq, 10),
			a.Timestamp.Format("15:04:05"),
			string(a.Kind),
			string(a.Severity),
			a.Payload.Message,
		})
	}
	table.Render()
}

func renderBatchTable(out io.Writer, batch *replay.BatchResult) {
	header := []string{"Date", "Snapshots", "Ticks", "CVD", "Net GEX"}
	for _, k := range alert.Kinds {
		header = append(header, string(k))
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, r := range batch.Results {
		if r.Result == nil {
			continue
		}
		res := r.Result
		netGEX := "-"
		if report, err := res.Session.GEXRows(); err == nil {
			netGEX = formatFloat(report.TotalGEX)
		}
		row := []string{
			r.Task.Date,
			strconv.Itoa(res.Snapshots),
			strconv.Itoa(res.Ticks),
			formatFloat(res.Session.CVD().CumulativeDelta),
			netGEX,
		}
		counts := res.AlertCounts()
		for _, k := range alert.Kinds {
			row = append(row, strconv.Itoa(counts[k]))
		}
		table.Append(row)
	}
	table.Render()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
