package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/womat/debug"

	"qcwcore/host/interrupter"
	"qcwcore/host/statuslog"
	"qcwcore/protocol"
)

type MonitorOptions struct {
	*RootOptions
	Database string
	Count    int
	NoStore  bool
}

var errEnough = errors.New("report count reached")

// NewMonitorCommand creates the monitor command.
func NewMonitorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MonitorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print and store STATUS reports",
		Long: `Monitor prints every STATUS report and appends it to the status log
until interrupted.

Example:
  qcwctl monitor --db status.db --count 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMonitor(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "status log database, overrides the file")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "stop after this many reports (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.NoStore, "no-store", false, "do not write the status log")
	return cmd
}

func runMonitor(ctx context.Context, cmd *cobra.Command, opts *MonitorOptions) error {
	var (
		store   *statuslog.Store
		session statuslog.Session
	)
	if !opts.NoStore {
		path := opts.Database
		if path == "" {
			path = opts.File.StatusLog.Path
		}
		var err error
		if store, err = statuslog.Open(path); err != nil {
			return err
		}
		defer store.Close()
		if session, err = store.NewSession(ctx, opts.File.Link.Device, opts.controller().TimerFreq); err != nil {
			return err
		}
		debug.InfoLog.Printf("status log %s session %s", path, session.ID)
	}

	seen := 0
	err := opts.connect(func(i *interrupter.Interrupter) error {
		return i.Monitor(ctx, func(s protocol.Status) error {
			if store != nil {
				if err := store.Append(ctx, session.ID, time.Now(), s); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), interrupter.FormatStatus(opts.controller(), s)); err != nil {
				return err
			}
			seen++
			if opts.Count > 0 && seen >= opts.Count {
				return errEnough
			}
			return nil
		})
	})
	if errors.Is(err, errEnough) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
