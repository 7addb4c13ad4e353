package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/womat/debug"

	"qcwcore/host/statuslog"
	"qcwcore/sim"
)

type SimOptions struct {
	*RootOptions
	Database string
	Seed     uint64
}

// NewSimCommand creates the sim command.
func NewSimCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run the controller against a simulated tank",
		Long: `Sim runs the controller section of the configuration against the
simulated resonant tank and current model from the sim section, applies
its script and prints a report.

Example:
  qcwctl sim -c bench.yaml --db sim.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "store the emitted STATUS reports in this status log")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "jitter seed, overrides the file")
	return cmd
}

func runSim(cmd *cobra.Command, opts *SimOptions) error {
	cfg := opts.File.Sim
	if opts.Seed != 0 {
		cfg.Seed = opts.Seed
	}

	r, err := sim.New(opts.controller(), cfg)
	if err != nil {
		return err
	}
	debug.InfoLog.Printf("simulating %d ticks", cfg.Duration)
	rep, err := r.Run()
	if err != nil {
		return err
	}
	if _, err := rep.WriteTo(cmd.OutOrStdout()); err != nil {
		return err
	}

	if opts.Database == "" {
		return nil
	}
	return storeSim(cmd.Context(), opts, r)
}

func storeSim(ctx context.Context, opts *SimOptions, r *sim.Runner) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := statuslog.Open(opts.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	freq := opts.controller().TimerFreq
	session, err := store.NewSession(ctx, "sim", freq)
	if err != nil {
		return err
	}
	interval := uint64(opts.controller().StatusInterval) * uint64(opts.File.Sim.HalfPeriod)
	for n, s := range r.Statuses() {
		at := session.StartedAt.Add(time.Duration(uint64(n+1) * interval * uint64(time.Second) / uint64(freq)))
		if err := store.Append(ctx, session.ID, at, s); err != nil {
			return err
		}
	}
	debug.InfoLog.Printf("stored %d reports in session %s", len(r.Statuses()), session.ID)
	return nil
}
