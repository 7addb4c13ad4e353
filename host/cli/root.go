// Package cli implements the qcwctl command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/womat/debug"

	"qcwcore/config"
	"qcwcore/core"
	"qcwcore/host/interrupter"
	"qcwcore/host/serial"
	"qcwcore/protocol"
)

// RootOptions holds global flags and the loaded configuration.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Device     string

	File *config.File
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "qcwctl",
		Version: protocol.Version,
		Short:   "Operate a QCW DRSSTC controller",
		Long: `qcwctl talks to a QCW DRSSTC controller over its serial/fiber link.

It starts and stops the drive, fires timed bursts, adjusts the conduction
angle and phase compensation, clears latched faults and follows the STATUS
stream. The sim command runs the controller against a simulated tank.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.close()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "qcw.yaml", "configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log", "", "log level (error|info|standard|debug|trace), overrides the file")
	cmd.PersistentFlags().StringVarP(&opts.Device, "device", "d", "", "serial device, overrides the file")

	cmd.AddCommand(newDriveCommands(opts)...)
	cmd.AddCommand(NewFireCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewMonitorCommand(opts))
	cmd.AddCommand(NewSimCommand(opts))

	return cmd
}

func (o *RootOptions) load() error {
	f, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		flag, err := config.LogFlag(o.LogLevel)
		if err != nil {
			return err
		}
		f.Log.Level, f.Log.Flag = o.LogLevel, flag
	}
	if o.Device != "" {
		f.Link.Device = o.Device
	}
	if err := f.Log.Open(); err != nil {
		return fmt.Errorf("log file %q: %w", f.Log.File, err)
	}
	debug.SetDebug(f.Log.Writer, f.Log.Flag)
	o.File = f
	return nil
}

func (o *RootOptions) close() error {
	if o.File == nil || o.File.Log.Writer == nil {
		return nil
	}
	return o.File.Log.Writer.Close()
}

func (o *RootOptions) serialConfig() serial.Config {
	return serial.Config{
		Device:      o.File.Link.Device,
		Baud:        o.File.Link.Baud,
		ReadTimeout: o.File.Link.ReadTimeout,
	}
}

func (o *RootOptions) controller() core.Config {
	return o.File.Controller
}

// connect opens the link, runs fn and closes it again.
func (o *RootOptions) connect(fn func(*interrupter.Interrupter) error) error {
	i, err := interrupter.Connect(o.serialConfig(), o.controller())
	if err != nil {
		return err
	}
	defer func() {
		if err := i.Close(); err != nil {
			debug.ErrorLog.Printf("close link: %v", err)
		}
	}()
	return fn(i)
}
