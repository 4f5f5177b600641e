package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"StockPipeline/internal/manager"
	"StockPipeline/internal/scheduler"
	"StockPipeline/internal/server"
	"StockPipeline/internal/storage"
)

func newScheduler(ctx context.Context, a *app) *scheduler.Scheduler {
	return scheduler.NewScheduler(ctx, a.manager, scheduler.Plan{
		Portfolios:         a.cfg.PortfolioList(),
		Universe:           a.cfg.UniverseSymbols(),
		LookbackDays:       a.cfg.LookbackDays,
		CalculateIntrinsic: *a.cfg.CalculateIntrinsic,
		KeepCount:          a.cfg.KeepCount,
	}, a.log)
}

func printResult(label string, res *manager.Result) {
	if res == nil {
		return
	}
	ok, empty, failed := res.Counts()
	fmt.Printf("%s: %d ok, %d empty, %d failed, %d files\n", label, ok, empty, failed, len(res.Paths))
	for _, o := range res.Outcomes {
		if o.Reason != "" {
			fmt.Printf("  %-10s %-6s %s\n", o.Symbol, o.Status, o.Reason)
		}
	}
}

type runCmd struct {
	portfolio string
	noSave    bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run the daily pipeline once" }
func (*runCmd) Usage() string {
	return `pipeline run [-portfolio <name>] [-no-save]

  Fetches, computes and stores every configured portfolio, then the full
  symbol universe, then applies retention. With -portfolio only that
  portfolio is processed.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "portfolio", "", "process only this configured portfolio")
	f.BoolVar(&c.noSave, "no-save", false, "compute without writing files")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := loadApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	defer a.Close()

	if c.portfolio == "" && !c.noSave {
		if err := newScheduler(ctx, a).RunDailyNow(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	end := time.Now()
	start := end.AddDate(0, 0, -a.cfg.LookbackDays)
	if c.portfolio != "" {
		p, ok := a.cfg.Portfolio(c.portfolio)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: portfolio %q is not configured\n", c.portfolio)
			return subcommands.ExitUsageError
		}
		res, err := a.manager.ProcessPortfolio(ctx, p.Name, p.Symbols, start, end, !c.noSave)
		printResult(p.Name, res)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	res, err := a.manager.ProcessAllSymbols(ctx, a.cfg.UniverseSymbols(), start, end, *a.cfg.CalculateIntrinsic, false)
	printResult("all symbols", res)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type serveCmd struct {
	runNow bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the scheduler and the read API" }
func (*serveCmd) Usage() string {
	return `pipeline serve [-run-now]

  Runs the daily pipeline on its cron schedule and serves the latest
  stored data over HTTP until interrupted.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.runNow, "run-now", os.Getenv("RUN_ON_START") == "true", "run the daily pipeline at startup")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := loadApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	defer a.Close()

	sched := newScheduler(ctx, a)
	if err := sched.RegisterAll(a.cfg.Schedule.DailyCron, a.cfg.Schedule.CleanupCron); err != nil {
		fmt.Fprintf(os.Stderr, "Error: register cron tasks: %v\n", err)
		return subcommands.ExitFailure
	}
	sched.Start()
	defer sched.Stop()

	if c.runNow {
		go func() {
			if err := sched.RunDailyNow(); err != nil {
				a.log.Error().Err(err).Msg("Startup run failed")
			}
		}()
	}

	srv := server.New(server.Config{
		Addr:     a.cfg.HTTP.Addr,
		Log:      a.log,
		Reader:   a.manager,
		Recorder: a.recorder,
	})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	a.log.Info().Msg("Pipeline is running. Press Ctrl+C to stop.")
	select {
	case <-ctx.Done():
		a.log.Info().Msg("Shutdown signal received, stopping...")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("HTTP server failed")
			return subcommands.ExitFailure
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	return subcommands.ExitSuccess
}

type cleanupCmd struct {
	keep int
}

func (*cleanupCmd) Name() string     { return "cleanup" }
func (*cleanupCmd) Synopsis() string { return "remove old date partitions" }
func (*cleanupCmd) Usage() string {
	return `pipeline cleanup [-keep <n>]

  Keeps the newest n date folders (default: keep_count from config) and
  deletes the rest. Other entries in the data directory are left alone.
`
}

func (c *cleanupCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.keep, "keep", 0, "number of date partitions to keep")
}

func (c *cleanupCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := loadApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	defer a.Close()

	keep := c.keep
	if keep == 0 {
		keep = a.cfg.KeepCount
	}
	removed, err := a.manager.Cleanup(keep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	for _, name := range removed {
		fmt.Println("removed", name)
	}
	return subcommands.ExitSuccess
}

type latestCmd struct {
	asJSON bool
}

func (*latestCmd) Name() string     { return "latest" }
func (*latestCmd) Synopsis() string { return "print the latest stored table of a kind" }
func (*latestCmd) Usage() string {
	return `pipeline latest [-json] <history|perf|intrinsic_value|fin>

  Prints the root latest file for the kind as CSV, or JSON with -json.
`
}

func (c *latestCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.asJSON, "json", false, "print JSON instead of CSV")
}

func (c *latestCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	kind, err := storage.ParseKind(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	a, err := loadApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	defer a.Close()

	table, err := a.manager.LoadLatestData(kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if table == nil {
		fmt.Fprintf(os.Stderr, "no %s data saved yet\n", kind)
		return subcommands.ExitFailure
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(table); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	w := csv.NewWriter(os.Stdout)
	_ = w.Write(table.Columns)
	_ = w.WriteAll(table.Rows)
	if err := w.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type symbolsCmd struct{}

func (*symbolsCmd) Name() string     { return "symbols" }
func (*symbolsCmd) Synopsis() string { return "list the symbols of a portfolio" }
func (*symbolsCmd) Usage() string {
	return `pipeline symbols <portfolio> [YYYYMMDD]

  Lists the portfolio's symbols from the registry, falling back to the
  header of that day's stored history (default: today).
`
}

func (*symbolsCmd) SetFlags(*flag.FlagSet) {}

func (c *symbolsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 1 || f.NArg() > 2 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	date := time.Now()
	if f.NArg() == 2 {
		d, err := time.Parse(storage.DateLayout, f.Arg(1))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: date must be YYYYMMDD: %v\n", err)
			return subcommands.ExitUsageError
		}
		date = d
	}
	a, err := loadApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	defer a.Close()

	symbols, err := a.manager.ListSymbols(f.Arg(0), date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Println(strings.Join(symbols, "\n"))
	return subcommands.ExitSuccess
}
