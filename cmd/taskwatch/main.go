// Package main is the entry point for the taskwatch daemon.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dshills/taskwatch/internal/config"
	"github.com/dshills/taskwatch/internal/fileaccess"
	"github.com/dshills/taskwatch/internal/filewatch"
	"github.com/dshills/taskwatch/internal/hook"
	"github.com/dshills/taskwatch/internal/logging"
	"github.com/dshills/taskwatch/internal/notify"
	"github.com/dshills/taskwatch/internal/taskconfig"
	"github.com/dshills/taskwatch/internal/tasksfile"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, initFile, listTasks := parseFlags()

	log := logging.NewLogger(logging.LoggerConfig{
		Level:  logging.ParseLogLevel(cfg.LogLevel),
		Output: os.Stderr,
		Prefix: "taskwatch",
	})

	files := fileaccess.NewOSFS()

	if initFile {
		if err := tasksfile.Init(files, cfg.Root); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create task file: %v\n", err)
			return 1
		}
		fmt.Printf("Created %s\n", taskconfig.ConfigPath(cfg.Root))
		return 0
	}

	if listTasks {
		labels, err := tasksfile.Labels(files, cfg.Root)
		if errors.Is(err, tasksfile.ErrFileNotFound) {
			fmt.Printf("no task file at %s\n", taskconfig.ConfigPath(cfg.Root))
			return 0
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		for _, label := range labels {
			fmt.Println(label)
		}
		return 0
	}

	// Create the watch backend
	var watch filewatch.Service
	switch cfg.Backend {
	case config.BackendPolling:
		watch = filewatch.NewPollingService(log,
			filewatch.WithPollInterval(cfg.PollInterval()),
			filewatch.WithExcludePatterns(cfg.ExcludePatterns),
		)
	default:
		var err error
		watch, err = filewatch.NewFSNotifyService(log,
			filewatch.WithDebounce(cfg.Debounce()),
			filewatch.WithExcludePatterns(cfg.ExcludePatterns),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start file watcher: %v\n", err)
			return 1
		}
	}
	defer watch.Close()

	// Broadcast label changes to all listeners
	broadcaster := notify.New()
	defer broadcaster.Close()

	broadcaster.Subscribe(func(labels []string) {
		if len(labels) == 0 {
			fmt.Println("tasks: (none)")
			return
		}
		fmt.Print("tasks:")
		for _, label := range labels {
			fmt.Printf(" %s", label)
		}
		fmt.Println()
	})

	// Optional Lua hook script
	if cfg.HookScript != "" {
		h, err := hook.Load(cfg.HookScript, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load hook script: %v\n", err)
			return 1
		}
		defer h.Close()
		broadcaster.Subscribe(h.OnTaskLabelsChanged)
	}

	watcher := taskconfig.NewWatcher(watch, files, log)
	defer watcher.Close()
	watcher.SetClient(broadcaster)

	if exists := watcher.WatchConfigurationFile(cfg.Root); exists {
		labels := watcher.TaskLabels()
		log.Info("watching %s (%d tasks)", taskconfig.ConfigPath(cfg.Root), len(labels))
	} else {
		log.Info("watching %s (not yet created)", taskconfig.ConfigPath(cfg.Root))
	}

	// Block until interrupted
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals

	log.Info("received %s, shutting down", sig)
	return 0
}

func parseFlags() (config.Config, bool, bool) {
	var (
		configPath  string
		root        string
		logLevel    string
		backend     string
		hookScript  string
		initFile    bool
		listTasks   bool
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&root, "root", "", "Workspace root directory (default: current directory)")
	flag.StringVar(&root, "r", "", "Workspace root directory (shorthand)")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&backend, "backend", "", "Watch backend (fsnotify, polling)")
	flag.StringVar(&hookScript, "hook", "", "Lua hook script run on task changes")
	flag.BoolVar(&initFile, "init", false, "Create a starter task file and exit")
	flag.BoolVar(&listTasks, "list", false, "List task labels and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Taskwatch - workspace task configuration watcher\n\n")
		fmt.Fprintf(os.Stderr, "Usage: taskwatch [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  taskwatch                        Watch the current directory\n")
		fmt.Fprintf(os.Stderr, "  taskwatch -r ./project           Watch a workspace\n")
		fmt.Fprintf(os.Stderr, "  taskwatch -r ./project -init     Create a starter task file\n")
		fmt.Fprintf(os.Stderr, "  taskwatch -r ./project -list     List task labels\n")
		fmt.Fprintf(os.Stderr, "  taskwatch -backend polling       Use the polling backend\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("Taskwatch %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Flags override the config file and environment
	if root != "" {
		cfg.Root = root
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if hookScript != "" {
		cfg.HookScript = hookScript
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", cfg.LogLevel)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.Root == "" {
		cfg.Root = "."
	}
	if abs, err := filepath.Abs(cfg.Root); err == nil {
		cfg.Root = abs
	}

	return cfg, initFile, listTasks
}
