// Command quorumdb replays a scripted trace of transactions against a
// simulated replicated key-value store and reports commit/abort
// outcomes and final committed values.
package main

import (
	"flag"
	"fmt"
	"os"

	"quorumkv/internal/config"
	"quorumkv/internal/coordinator"
	"quorumkv/internal/datamanager"
	"quorumkv/internal/diagnostics"
	"quorumkv/internal/logging"
	"quorumkv/internal/script"
)

func main() {
	var (
		inputDir   = flag.String("inputdir", "", "directory containing the input script (default ./input/)")
		input      = flag.String("input", "", "script filename within inputdir (default input1)")
		configPath = flag.String("config", "", "path to an optional YAML config file")
		logLevel   = flag.String("log-level", "", "log level (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "log format (text, json)")
		traceTo    = flag.String("trace-dir", "", "if set, write a compressed diagnostic trace to this directory")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "quorumdb:", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if *inputDir != "" {
		cfg.Script.InputDir = *inputDir
	}
	if *input != "" {
		cfg.Script.Input = *input
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *traceTo != "" {
		cfg.Diagnostics.TraceEnabled = true
		cfg.Diagnostics.TraceOutputDir = *traceTo
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "quorumdb:", err)
		os.Exit(1)
	}

	log := logging.New("quorumdb")
	log.SetLevel(parseLevel(cfg.Logging.Level))
	if cfg.Logging.Format == "text" {
		log.SetFormatter(&logging.TextFormatter{})
	}

	dm := datamanager.New(cfg.Topology.SiteCount, cfg.Topology.VariableCount, log.WithFields(logging.F("component", "datamanager")))
	coord := coordinator.New(dm, log.WithFields(logging.F("component", "coordinator")))

	var engine *diagnostics.CompressionEngine
	var trace *diagnostics.TraceRecorder
	if cfg.Diagnostics.TraceEnabled {
		engine = diagnostics.NewCompressionEngine()
		trace = diagnostics.NewTraceRecorder(engine, cfg.Diagnostics.TraceCompressor)
	}

	if err := script.Run(coord, log, cfg.Script.InputDir, cfg.Script.Input, os.Stdout, trace); err != nil {
		fmt.Fprintln(os.Stderr, "quorumdb:", err)
		os.Exit(1)
	}

	if cfg.Diagnostics.TraceEnabled {
		if err := trace.Flush(cfg.Diagnostics.TraceOutputDir, cfg.Script.Input+".trace"); err != nil {
			fmt.Fprintln(os.Stderr, "quorumdb: diagnostics:", err)
		}
		archiver := diagnostics.NewSnapshotArchiver(engine, cfg.Diagnostics.TraceCompressor)
		if err := archiver.Archive(dm, cfg.Diagnostics.TraceOutputDir, cfg.Script.Input+".snapshot"); err != nil {
			fmt.Fprintln(os.Stderr, "quorumdb: diagnostics:", err)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

func parseLevel(level string) logging.Level {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
