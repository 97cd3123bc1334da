package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	bitwatch "github.com/mattkeenan/bitwatch/pkg"
)

func cmdAdd(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("add requires at least one directory")
	}
	for _, path := range args {
		root, err := a.engine.AddRoot(ctx, path)
		if err != nil {
			return err
		}
		a.out.message("Watching %s (root %d)", root.Path, root.ID)
	}
	return nil
}

func cmdRemove(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("remove requires at least one root")
	}
	for _, arg := range args {
		root, err := a.resolveRoot(ctx, arg)
		if err != nil {
			return err
		}
		if err := a.engine.RemoveRoot(ctx, root.ID); err != nil {
			return err
		}
		a.out.message("Stopped watching %s", root.Path)
	}
	return nil
}

func cmdRoots(ctx context.Context, a *app, args []string) error {
	roots, err := a.engine.Roots(ctx)
	if err != nil {
		return err
	}
	return a.out.roots(roots)
}

func cmdExclude(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("exclude requires at least one path")
	}
	for _, path := range args {
		scope, err := a.engine.ResolvePath(ctx, path)
		if err != nil {
			return err
		}
		if err := a.engine.Exclude(ctx, scope); err != nil {
			return err
		}
		a.out.message("Excluded %s", path)
	}
	return nil
}

func cmdInclude(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("include requires at least one path")
	}
	for _, path := range args {
		scope, err := a.engine.ResolvePath(ctx, path)
		if err != nil {
			return err
		}
		if err := a.engine.Include(ctx, scope); err != nil {
			return err
		}
		a.out.message("Included %s", path)
	}
	return nil
}

func cmdExclusions(ctx context.Context, a *app, args []string) error {
	var roots []bitwatch.Root
	if len(args) == 0 {
		all, err := a.engine.Roots(ctx)
		if err != nil {
			return err
		}
		roots = all
	} else {
		for _, arg := range args {
			root, err := a.resolveRoot(ctx, arg)
			if err != nil {
				return err
			}
			roots = append(roots, root)
		}
	}

	for _, root := range roots {
		rules, err := a.engine.Exclusions(ctx, root.ID)
		if err != nil {
			return err
		}
		if err := a.out.exclusions(root, rules); err != nil {
			return err
		}
	}
	return nil
}

func cmdHash(ctx context.Context, a *app, args []string) error {
	_, err := a.runScopes(ctx, args, bitwatch.Mode{Prune: a.options.GetBool("prune")})
	return err
}

func cmdVerify(ctx context.Context, a *app, args []string) error {
	summary, err := a.runScopes(ctx, args, bitwatch.Mode{Verify: true, Prune: a.options.GetBool("prune")})
	if err != nil {
		return err
	}
	if summary.HasChanges() {
		return errDifferences
	}
	if summary.Errors > 0 {
		return fmt.Errorf("%d nodes could not be checked", summary.Errors)
	}
	return nil
}

// runScopes runs mode over the scopes named by paths, or every root when
// no path is given
func (a *app) runScopes(ctx context.Context, paths []string, mode bitwatch.Mode) (bitwatch.RunSummary, error) {
	var printErr error
	onEvent := func(event bitwatch.Event) {
		if err := a.out.event(event); err != nil && printErr == nil {
			printErr = err
		}
	}

	if len(paths) == 0 {
		summary, err := a.engine.RunAll(ctx, mode, onEvent)
		if err == nil {
			err = printErr
		}
		return summary, err
	}

	var total bitwatch.RunSummary
	for _, path := range paths {
		scope, err := a.engine.ResolvePath(ctx, path)
		if err != nil {
			return total, err
		}
		summary, err := a.engine.Run(ctx, scope, mode, onEvent)
		total.Merge(summary)
		if err != nil {
			return total, err
		}
	}
	return total, printErr
}

func cmdRefresh(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("refresh requires at least one path")
	}
	for _, path := range args {
		scope, err := a.engine.ResolvePath(ctx, path)
		if err != nil {
			return err
		}
		root, err := a.resolveRoot(ctx, strconv.FormatInt(int64(scope.RootID), 10))
		if err != nil {
			return err
		}

		events, err := a.engine.RefreshStructureAsync(ctx, scope)
		if err != nil {
			return err
		}
		var runErr error
		for event := range events {
			if event.Done {
				runErr = event.Err
				continue
			}
			if err := a.out.structure(event, root.Path); err != nil && runErr == nil {
				runErr = err
			}
		}
		if runErr != nil {
			return runErr
		}
	}
	return nil
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("export requires exactly one root")
	}
	root, err := a.resolveRoot(ctx, args[0])
	if err != nil {
		return err
	}

	if output := a.options.GetString("output"); output != "" {
		count, err := bitwatch.WriteManifestFile(ctx, a.store, root.ID, output)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d entries to %s\n", count, output)
		return nil
	}

	_, err = bitwatch.ExportManifest(ctx, a.store, root.ID, os.Stdout)
	return err
}

func cmdDupes(ctx context.Context, a *app, args []string) error {
	var ids []bitwatch.RootID
	for _, arg := range args {
		root, err := a.resolveRoot(ctx, arg)
		if err != nil {
			return err
		}
		ids = append(ids, root.ID)
	}

	groups, err := a.engine.Duplicates(ctx, ids)
	if err != nil {
		return err
	}
	roots, err := a.engine.Roots(ctx)
	if err != nil {
		return err
	}
	return a.out.duplicates(groups, roots)
}

func cmdSettings(ctx context.Context, a *app, args []string) error {
	switch len(args) {
	case 0:
		settings, err := a.engine.Settings(ctx)
		if err != nil {
			return err
		}
		return a.out.settings(settings)
	case 1:
		settings, err := a.engine.Settings(ctx)
		if err != nil {
			return err
		}
		value, err := settings.Value(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out.w, value)
		return nil
	case 2:
		if err := a.engine.SaveSetting(ctx, args[0], args[1]); err != nil {
			return err
		}
		a.out.message("%s saved", args[0])
		return nil
	default:
		return fmt.Errorf("usage: settings [key [value]]")
	}
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	interval := time.Duration(a.options.GetInt("interval")) * time.Minute
	if interval <= 0 {
		settings, err := a.engine.Settings(ctx)
		if err != nil {
			return err
		}
		interval = settings.AutoRunInterval()
	}

	addr := a.options.GetString("metrics-addr")
	if addr == "" {
		addr = a.config.GetMetricsConfig().Listen
	}
	if addr != "" {
		server := &http.Server{Addr: addr, Handler: metricsMux(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Metrics server failed", zap.String("addr", addr), zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
		a.logger.Info("Serving metrics", zap.String("addr", addr))
	}

	scheduler := bitwatch.NewScheduler(a.engine, bitwatch.SchedulerOptions{
		Interval:   interval,
		Mode:       bitwatch.Mode{Verify: true, Prune: a.options.GetBool("prune")},
		RunOnStart: a.options.GetBool("run-now"),
		OnEvent: func(event bitwatch.Event) {
			if err := a.out.event(event); err != nil {
				a.logger.Warn("Failed to print event", zap.Error(err))
			}
		},
		Logger: a.logger,
	})
	a.out.message("Verifying every %s, press Ctrl+C to stop", interval)
	scheduler.Run(ctx)

	stats := scheduler.Stats()
	a.out.message("%d runs, %d failed, %d changes seen", stats.Runs, stats.Failures, stats.Changes)
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// resolveRoot finds a root by numeric id or by its directory path
func (a *app) resolveRoot(ctx context.Context, arg string) (bitwatch.Root, error) {
	roots, err := a.engine.Roots(ctx)
	if err != nil {
		return bitwatch.Root{}, err
	}

	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		for _, root := range roots {
			if root.ID == bitwatch.RootID(id) {
				return root, nil
			}
		}
	}

	abs, err := filepath.Abs(arg)
	if err != nil {
		return bitwatch.Root{}, err
	}
	for _, root := range roots {
		if root.Path == abs {
			return root, nil
		}
	}
	return bitwatch.Root{}, fmt.Errorf("%w: %s", bitwatch.ErrRootNotFound, arg)
}
