// Package config loads the host-side YAML configuration: controller
// tuning, link settings, status log, simulator and logging.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/womat/debug"
	"gopkg.in/yaml.v3"

	"qcwcore/core"
	"qcwcore/sim"
)

// File is the layout of the configuration file.
type File struct {
	Controller core.Config     `yaml:"controller"`
	Link       LinkConfig      `yaml:"link"`
	StatusLog  StatusLogConfig `yaml:"status_log"`
	Sim        sim.Config      `yaml:"sim"`
	Log        LogConfig       `yaml:"log"`
}

// LinkConfig describes the serial/fiber adapter.
type LinkConfig struct {
	Device        string        `yaml:"device"`
	Baud          int           `yaml:"baud"`
	ReadTimeoutMs int           `yaml:"read_timeout_ms"`
	ReadTimeout   time.Duration `yaml:"-"`
}

// StatusLogConfig selects where received STATUS frames are stored.
type StatusLogConfig struct {
	Path string `yaml:"path"`
}

// LogConfig selects the debug level and destination.
type LogConfig struct {
	Level  string         `yaml:"level"`
	File   string         `yaml:"file"`
	Flag   int            `yaml:"-"`
	Writer io.WriteCloser `yaml:"-"`
}

// New returns a File with the link and log defaults filled in. Controller
// tuning has no defaults and must come from the file.
func New() *File {
	return &File{
		Link: LinkConfig{
			Baud:          250000,
			ReadTimeoutMs: 100,
		},
		StatusLog: StatusLogConfig{Path: "qcw-status.db"},
		Log: LogConfig{
			Level: "standard",
			File:  "stderr",
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	f, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return f, nil
}

// Parse decodes a configuration; unknown keys are an error.
func Parse(r io.Reader) (*File, error) {
	f := New()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	f.Link.ReadTimeout = time.Duration(f.Link.ReadTimeoutMs) * time.Millisecond

	flag, err := LogFlag(f.Log.Level)
	if err != nil {
		return nil, err
	}
	f.Log.Flag = flag

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the controller and link sections. The simulator section
// is checked when a simulation starts.
func (f *File) Validate() error {
	if err := f.Controller.Validate(); err != nil {
		return err
	}
	if f.Link.Baud <= 0 {
		return fmt.Errorf("link baud %d: must be positive", f.Link.Baud)
	}
	if f.Link.ReadTimeoutMs < 0 {
		return fmt.Errorf("link read_timeout_ms %d: negative", f.Link.ReadTimeoutMs)
	}
	return nil
}

// LogFlag maps a level name to womat/debug flags.
func LogFlag(level string) (int, error) {
	switch strings.ToLower(level) {
	case "trace", "full":
		return debug.Full, nil
	case "debug":
		return debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug, nil
	case "standard", "":
		return debug.Standard, nil
	case "info":
		return debug.Info | debug.Error | debug.Fatal, nil
	case "error":
		return debug.Error | debug.Fatal, nil
	}
	return 0, fmt.Errorf("unknown log level %q", level)
}

// Open resolves the log destination.
func (l *LogConfig) Open() (err error) {
	switch l.File {
	case "stderr", "":
		l.Writer = nopCloser{os.Stderr}
	case "stdout":
		l.Writer = nopCloser{os.Stdout}
	default:
		l.Writer, err = os.OpenFile(l.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	}
	return err
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
