package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/saba-futai/fwspeed/internal/app"
	"github.com/saba-futai/fwspeed/internal/config"
	"github.com/saba-futai/fwspeed/internal/logging"
	"github.com/saba-futai/fwspeed/internal/poller"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const (
	exitOK = iota
	exitFailure
	exitCredentials
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath(), "Path to settings file (created with defaults if missing)")
	askPass := flag.Bool("ask-pass", false, "Prompt for the appliance password instead of using the settings file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate settings and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fwspeed %s (built %s)\n", version, buildTime)
		return exitOK
	}

	cfg, created, err := config.LoadOrCreate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load settings: %v\n", err)
		return exitFailure
	}
	if created {
		fmt.Fprintf(os.Stderr, "Wrote default settings to %s\n", *configPath)
	}

	if *validateOnly {
		fmt.Println("Settings are valid")
		return exitOK
	}

	if *askPass {
		pass, err := readPassword(cfg.User)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read password: %v\n", err)
			return exitFailure
		}
		cfg.Pass = pass
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return exitFailure
	}
	logging.SetGlobal(logger)
	defer logging.Sync()

	logging.Info("starting fwspeed",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("admin_url", cfg.AdminURL()))

	a, err := app.New(cfg,
		app.WithLogger(logger),
		app.WithTickHandler(func(_ *image.RGBA, r poller.Readout) {
			fmt.Println(r.String())
		}))
	if err != nil {
		logging.Error("failed to create poller", zap.Error(err))
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		if errors.Is(err, poller.ErrCredentials) {
			logging.Error("check credentials", zap.String("user", cfg.User), zap.Error(err))
			return exitCredentials
		}
		logging.Error("poller error", zap.Error(err))
		return exitFailure
	}
	return exitOK
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "fwspeed.yaml"
	}
	return filepath.Join(dir, "fwspeed", "settings.yaml")
}

func readPassword(user string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", user)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pass), nil
}
