package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"qcwcore/host/interrupter"
)

// waitFlag prints the next STATUS report after a command when set.
type waitFlag struct {
	timeout time.Duration
}

func (w *waitFlag) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&w.timeout, "wait", 0, "print the next STATUS report, waiting at most this long")
}

func (w *waitFlag) after(cmd *cobra.Command, opts *RootOptions, i *interrupter.Interrupter) error {
	if w.timeout <= 0 {
		return nil
	}
	s, err := i.WaitStatus(w.timeout)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), interrupter.FormatStatus(opts.controller(), s))
	return err
}

func newDriveCommands(opts *RootOptions) []*cobra.Command {
	simple := []struct {
		use, short string
		send       func(*interrupter.Interrupter) error
	}{
		{"run", "Enable continuous drive", (*interrupter.Interrupter).Run},
		{"stop", "Disable drive", (*interrupter.Interrupter).Stop},
		{"reset", "Clear a latched overcurrent fault", (*interrupter.Interrupter).Reset},
	}

	var cmds []*cobra.Command
	for _, s := range simple {
		s := s
		wait := &waitFlag{}
		cmd := &cobra.Command{
			Use:   s.use,
			Short: s.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.connect(func(i *interrupter.Interrupter) error {
					if err := s.send(i); err != nil {
						return err
					}
					return wait.after(cmd, opts, i)
				})
			},
		}
		wait.register(cmd)
		cmds = append(cmds, cmd)
	}
	return cmds
}

// NewFireCommand creates the fire command.
func NewFireCommand(opts *RootOptions) *cobra.Command {
	wait := &waitFlag{}
	cmd := &cobra.Command{
		Use:   "fire <duration>",
		Short: "Fire a single timed burst",
		Long: `Fire enables the drive for the given duration, after which the
controller stops on its own.

Example:
  qcwctl fire 15ms`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("pulse duration: %w", err)
			}
			return opts.connect(func(i *interrupter.Interrupter) error {
				if err := i.Fire(d); err != nil {
					return err
				}
				return wait.after(cmd, opts, i)
			})
		},
	}
	wait.register(cmd)
	return cmd
}

// NewSetCommand creates the set command.
func NewSetCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change a drive parameter",
	}

	angle := &cobra.Command{
		Use:   "angle <fraction>",
		Short: "Set the conduction angle as a fraction of the half-period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("angle: %w", err)
			}
			return opts.connect(func(i *interrupter.Interrupter) error { return i.SetAngle(v) })
		},
	}

	phase := &cobra.Command{
		Use:   "phase <ticks>",
		Short: "Set the phase compensation in timer ticks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("phase: %w", err)
			}
			return opts.connect(func(i *interrupter.Interrupter) error { return i.SetPhase(int32(v)) })
		},
	}

	cmd.AddCommand(angle, phase)
	return cmd
}
