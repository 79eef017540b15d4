package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pagesync/am"
	"github.com/teranos/pagesync/db"
	"github.com/teranos/pagesync/local"
	"github.com/teranos/pagesync/logger"
	"github.com/teranos/pagesync/poller"
	"github.com/teranos/pagesync/sym"
	"github.com/teranos/pagesync/sync"
)

// WatchCmd runs the poller and the local file watcher until interrupted.
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: sym.Poll + " Poll the remote store and follow local edits",
	Long: sym.Poll + ` watch — Poll the remote store and follow local edits

The remote scope in poll.scope is polled every poll.interval_seconds.
Changed pages update their records; with poll.auto_pull they are pulled
unless the local copy has edits of its own. Local edits are reported as
they happen and their link sets refreshed.

Editing the config file while watching applies a new poll interval without
a restart.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scope, err := a.cfg.PollScope()
	if err != nil {
		return err
	}
	p := poller.New(a.remote, poller.Config{Scope: scope, Interval: a.cfg.PollInterval()}, a.log)
	p.On(a.engine.HandleEvent)
	if err := p.Initialize(ctx); err != nil {
		return err
	}
	p.Start()
	defer p.Stop()

	fw, err := local.NewWatcher(a.ws, localChangeHandler(ctx, a), a.log)
	if err != nil {
		return err
	}
	fw.Start()
	defer fw.Stop()

	if path := am.ActiveConfigFile(); path != "" {
		cw, err := am.NewConfigWatcher(path, a.log)
		if err != nil {
			a.log.Warnw("Config changes will not be picked up", logger.FieldFile, path, logger.FieldError, err)
		} else {
			cw.OnReload(func(cfg *am.Config) error {
				p.SetInterval(cfg.PollInterval())
				return nil
			})
			am.SetGlobalWatcher(cw)
			cw.Start()
			defer cw.Stop()
		}
	}

	pterm.Info.Printf("Watching %s and %s (every %s). Ctrl-C to stop.\n", scope, a.ws.Root(), a.cfg.PollInterval())
	<-ctx.Done()
	pterm.Info.Println("Stopping")
	return nil
}

// localChangeHandler reports the state of changed documents and keeps the
// stored links of tracked ones current.
func localChangeHandler(ctx context.Context, a *app) local.ChangeHandler {
	return func(paths []string) {
		for _, p := range paths {
			st, err := a.engine.Status(ctx, p)
			if db.IsClosed(err) {
				return
			}
			if err != nil {
				a.log.Warnw("Status failed", logger.FieldPath, p, logger.FieldError, err)
				continue
			}
			logger.StateInfow(a.log, string(st.State), "Local change", logger.FieldPath, p)
			if st.Document == nil || st.State == sync.StateRemoteOnly {
				continue
			}
			doc, err := a.ws.Read(p)
			if err != nil && doc.Path == "" {
				continue
			}
			diff, err := a.engine.RefreshLinks(ctx, st.Document, doc.Body)
			if err != nil {
				a.log.Warnw("Link refresh failed", logger.FieldPath, p, logger.FieldError, err)
				continue
			}
			if !diff.Empty() {
				a.log.Infow("Links changed", logger.FieldSymbol, sym.Link, logger.FieldPath, p,
					"added", len(diff.Added), "removed", len(diff.Removed))
			}
		}
	}
}
