// Package main provides the entry point for the gstfs mount.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ajaxzhan/gstfs/internal/config"
	"github.com/ajaxzhan/gstfs/internal/fs"
	"github.com/ajaxzhan/gstfs/internal/logging"
	"github.com/ajaxzhan/gstfs/internal/transcode"
)

func main() {
	flags := pflag.NewFlagSet("gstfs", pflag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: gstfs [flags] <mountpoint>\n\n")
		fmt.Fprintf(os.Stderr, "mount options (-o):\n")
		fmt.Fprintf(os.Stderr, "  src=<dir>  src_ext=<ext>  dst_ext=<ext>  pipeline=<spec>\n")
		fmt.Fprintf(os.Stderr, "  ncache=<n>  engine=<name>  allow_other  debug\n\n")
		fmt.Fprintf(os.Stderr, "The pipeline receives the raw source file and must decode it, e.g.\n")
		fmt.Fprintf(os.Stderr, "  pipeline=decodebin ! audioconvert ! lamemp3enc bitrate=192\n")
		fmt.Fprintf(os.Stderr, "Quote property values containing spaces: caps=\"audio/x-raw, rate=44100\"\n\n")
		flags.PrintDefaults()
	}

	// Parse flags
	configPath := flags.String("config", "", "Path to configuration file (YAML)")
	mountOpts := flags.StringP("options", "o", "", "Comma separated mount options")
	sourceDir := flags.String("source", "", "Source directory to mirror (overrides config)")
	sourceExt := flags.String("source-ext", "", "Extension of files to transcode (overrides config)")
	targetExt := flags.String("target-ext", "", "Extension presented for transcoded files (overrides config)")
	pipeline := flags.String("pipeline", "", "Transcoding pipeline specification (overrides config)")
	ncache := flags.Int("ncache", 0, "Maximum number of cached files (overrides config)")
	engineName := flags.String("engine", "", "Transcoding engine: gstreamer, mp3wav (overrides config)")
	logLevel := flags.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	allowOther := flags.Bool("allow-other", false, "Allow other users to access the mount")
	debug := flags.Bool("debug", false, "Log every FUSE request")
	flags.Parse(os.Args[1:])

	// Load configuration
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	extra, err := cfg.ApplyMountOptions(*mountOpts)
	if err != nil {
		log.Fatalf("Failed to parse mount options: %v", err)
	}

	// Apply command-line overrides
	if *sourceDir != "" {
		cfg.Mount.SourceDir = *sourceDir
	}
	if *sourceExt != "" {
		cfg.Mount.SourceExt = *sourceExt
	}
	if *targetExt != "" {
		cfg.Mount.TargetExt = *targetExt
	}
	if *pipeline != "" {
		cfg.Mount.Pipeline = *pipeline
	}
	if *ncache != 0 {
		cfg.Cache.MaxEntries = *ncache
	}
	if *engineName != "" {
		cfg.Transcoder.Engine = *engineName
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *allowOther {
		cfg.Mount.AllowOther = true
	}
	if *debug {
		cfg.Mount.Debug = true
	}
	if flags.NArg() > 0 {
		cfg.Mount.MountPoint = flags.Arg(0)
	}

	if cfg.Mount.MountPoint == "" {
		flags.Usage()
		os.Exit(2)
	}
	if err := cfg.Normalize(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		flags.Usage()
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logging system
	if err := logging.Init(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Sync()

	engine, err := transcode.New(transcode.Options{
		Engine:        cfg.Transcoder.Engine,
		GstLaunchPath: cfg.Transcoder.GstLaunchPath,
	})
	if err != nil {
		logging.Fatal("Failed to create transcoding engine", logging.Err(err))
	}

	mountCfg := cfg.MountConfig()
	adapter := fs.NewAdapter(mountCfg, engine, cfg.Transcoder.GetTimeout())

	mountPoint, err := filepath.Abs(cfg.Mount.MountPoint)
	if err != nil {
		logging.Fatal("Failed to resolve mount point", logging.Err(err))
	}

	opts := fs.DefaultOptions()
	opts.AllowOther = cfg.Mount.AllowOther
	opts.Debug = cfg.Mount.Debug
	opts.Extra = extra

	tfs, err := fs.NewTranscodeFS(adapter, mountPoint, opts)
	if err != nil {
		logging.Fatal("Failed to create filesystem", logging.Err(err))
	}

	logging.Info("Starting gstfs...",
		logging.String("source", mountCfg.SourceDir),
		logging.String("mount_point", mountPoint),
		logging.String("source_ext", mountCfg.SourceExt),
		logging.String("target_ext", mountCfg.TargetExt),
		logging.String("engine", engine.Name()),
		logging.Int("max_cache_entries", mountCfg.MaxCacheEntries),
		logging.Bool("allow_other", opts.AllowOther),
	)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tfs.Mount(ctx); err != nil && err != context.Canceled {
		logging.Fatal("Mount failed", logging.Err(err))
	}

	stats := adapter.Stats()
	logging.Info("Cache statistics",
		logging.Int("entries", stats.Entries),
		logging.Uint64("hits", stats.Hits),
		logging.Uint64("misses", stats.Misses),
		logging.Float64("hit_rate", stats.HitRate()),
		logging.Uint64("evictions", stats.Evictions),
		logging.Uint64("requeues", stats.Requeues),
		logging.Uint64("over_capacity", stats.OverCapacity),
		logging.Uint64("materializations", stats.Materializations),
		logging.Uint64("failures", stats.Failures),
	)
}
