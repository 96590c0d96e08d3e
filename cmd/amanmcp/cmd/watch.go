package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/indexer"
	"github.com/Aman-CERP/amanmcp/internal/output"
	"github.com/Aman-CERP/amanmcp/internal/watcher"
)

func newWatchCmd(a *app) *cobra.Command {
	var root, project string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a project and keep its index in sync automatically",
		Long: `Watch installs a filesystem watcher over the project root and a
debounced reindex scheduler: bursts of file events are
coalesced, and a project is reindexed once it has been quiescent for
the configured debounce window. An optional periodic rescan additionally
catches changes the watcher missed.

Runs until the command's context is canceled (Ctrl+C).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			ix, err := a.open(ctx, root, project)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			cfg, err := config.Load(ix.Root())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			wopts := watcher.DefaultOptions()
			wopts.Extensions = cfg.Chunking.Extensions
			wopts.ExtraIgnores = cfg.Paths.Exclude
			fw := watcher.NewFSWatcher(wopts)
			if err := fw.Watch(ctx, ix.Root()); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer func() { _ = fw.Close() }()

			debounce := time.Duration(cfg.Watcher.DebounceSeconds * float64(time.Second))
			var opts []watcher.SchedulerOption
			if cfg.Watcher.RescanMinutes > 0 {
				opts = append(opts, watcher.WithRescanInterval(time.Duration(cfg.Watcher.RescanMinutes)*time.Minute))
			}
			sched := watcher.NewProjectScheduler(debounce, opts...)
			sched.RegisterDirectory(ix.Project(), ix.Root())
			go sched.Run()
			defer sched.Stop()

			out.Statusf("*", "watching %s (debounce %s)", ix.Root(), debounce)

			return runWatchLoop(ctx, out, ix, fw, sched)
		},
	}

	addRootAndProjectFlags(cmd, &root, &project)
	return cmd
}

func runWatchLoop(ctx context.Context, out *output.Writer, ix *indexer.Indexer, fw *watcher.FSWatcher, sched *watcher.ProjectScheduler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case events, ok := <-fw.Events():
			if !ok {
				return nil
			}
			if len(events) > 0 {
				sched.NotifyDirectory(ix.Root())
			}
		case err, ok := <-fw.Errors():
			if !ok {
				continue
			}
			out.Warningf("watcher error: %v", err)
		case project, ok := <-sched.Queue():
			if !ok {
				return nil
			}
			stats, err := ix.IndexDirectory(ctx, false, nil)
			if err != nil {
				out.Errorf("reindex of %q failed: %v", project, err)
				continue
			}
			if stats.ChunksIndexed > 0 || stats.FilesRemoved > 0 {
				out.Successf("reindexed %q: +%d ~%d -%d files, %d chunks", project,
					stats.FilesAdded, stats.FilesModified, stats.FilesRemoved, stats.ChunksIndexed)
			}
		}
	}
}
