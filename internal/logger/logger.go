package logger

import (
    "fmt"
    "io"
    "os"
    "path/filepath"
    "time"

    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options defines logger initialization parameters.
type Options struct {
    // Service tags every event shipped to Axiom.
    Service    string
    Level      string
    Pretty     bool
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool

    // Console overrides stdout as the console sink; tests point it at a buffer.
    Console io.Writer

    // Axiom
    SendToAxiom  bool
    AxiomAPIKey  string
    AxiomOrgID   string
    AxiomDataset string
    AxiomFlush   time.Duration
}

var shipper *axiomShipper

// Init replaces the global zerolog logger. Events go to the console, to a
// rotating file when File is set, and to Axiom (info and above) when enabled.
func Init(opts Options) error {
    if opts.Service == "" { opts.Service = "chopdok" }
    Close()

    sinks := []io.Writer{consoleSink(opts)}
    if opts.File != "" {
        if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
            return fmt.Errorf("create logs dir: %w", err)
        }
        sinks = append(sinks, &lumberjack.Logger{
            Filename:   opts.File,
            MaxSize:    opts.MaxSizeMB,
            MaxBackups: opts.MaxBackups,
            MaxAge:     opts.MaxAgeDays,
            Compress:   opts.Compress,
        })
    }

    var axiomErr error
    if opts.SendToAxiom && opts.AxiomAPIKey != "" {
        shipper, axiomErr = newAxiomShipper(opts)
        if shipper != nil { sinks = append(sinks, shipper) }
    }

    lvl, err := zerolog.ParseLevel(opts.Level)
    if err != nil || opts.Level == "" { lvl = zerolog.InfoLevel }

    zerolog.TimeFieldFormat = time.RFC3339
    log.Logger = zerolog.New(zerolog.MultiLevelWriter(sinks...)).Level(lvl).With().Timestamp().Logger()
    if axiomErr != nil {
        log.Warn().Err(axiomErr).Msg("axiom disabled")
    }
    return nil
}

func consoleSink(opts Options) io.Writer {
    out := opts.Console
    if out == nil { out = os.Stdout }
    if opts.Pretty {
        return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
    }
    return out
}

// Close flushes and stops the Axiom shipper, if any.
func Close() {
    if shipper != nil {
        shipper.Close()
        shipper = nil
    }
}

// Component returns a child of the global logger tagged with component.
func Component(name string) zerolog.Logger {
    return log.Logger.With().Str("component", name).Logger()
}
