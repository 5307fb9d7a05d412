package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/stubmill/simbridge/simbridge-srv/config"
	"github.com/stubmill/simbridge/simbridge-srv/logger"
	"github.com/stubmill/simbridge/simbridge-srv/proxy"
	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

var version string

func main() {
	cfg, opts := parseFlagsAndConfig()
	runProxy(cfg, opts)
}

type runOptions struct {
	mode       proxy.Mode
	importPath string
}

// parseFlagsAndConfig handles CLI flags, environment, logging, and config loading.
func parseFlagsAndConfig() (*config.Config, runOptions) {
	versionFlag := flag.Bool("version", false, "Print version and exit")
	versionShortFlag := flag.Bool("v", false, "Print version and exit (shorthand)")
	configPath := flag.String("config", "config.json", "Path to configuration file (supports .json and .hcl formats)")
	modeFlag := flag.String("mode", "simulate", "Proxy mode: simulate, capture, spy or diff")
	importPath := flag.String("import", "", "Simulation file to import at startup")
	envfile := flag.String("envfile", "", "Path to env file to load environment variables")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *versionFlag || *versionShortFlag {
		if version == "" {
			version = "dev"
		}
		fmt.Println("simbridge version:", version)
		os.Exit(0)
	}

	if *envfile != "" {
		if err := loadEnvFile(*envfile); err != nil {
			logger.Fatal("Failed to load envfile: %v", err)
		}
		logger.Info("Loaded environment variables from %s", *envfile)
	}

	if *debugMode {
		logger.SetLevel(logger.DEBUG)
		logger.Debug("Debug logging enabled")
	}

	mode, err := proxy.ParseMode(*modeFlag)
	if err != nil {
		logger.Fatal("Invalid mode: %v", err)
	}

	logger.Info("Starting simbridge proxy in %s mode", mode)
	logger.Debug("Using configuration file: %s", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("Could not load config file: %v. Using environment variables.", err)
		cfg, err = config.Load("")
		if err != nil {
			logger.Fatal("Failed to load configuration: %v", err)
		}
	}

	logger.Debug("Listen address: %s, admin address: %s", cfg.ListenAddress, cfg.AdminAddress)
	logger.Debug("Timeout: %d seconds", cfg.TimeoutSeconds)
	logger.Debug("Journal backend: %s", cfg.Journal.Backend)

	return cfg, runOptions{mode: mode, importPath: *importPath}
}

// runProxy starts the proxy and blocks until a termination signal.
// SIGHUP restarts with a freshly imported simulation.
func runProxy(cfg *config.Config, opts runOptions) {
	start := func() *proxy.Proxy {
		p, err := proxy.New(cfg, opts.mode)
		if err != nil {
			logger.Fatal("Failed to create proxy: %v", err)
		}
		if err := p.Start(); err != nil {
			logger.Fatal("Failed to start proxy: %v", err)
		}
		logger.Info("Proxy listening on %s, admin API on %s", p.Addr(), p.AdminAddr())

		if opts.importPath != "" {
			if err := p.Simulate(simulation.File(opts.importPath)); err != nil {
				logger.Fatal("Failed to import simulation %s: %v", opts.importPath, err)
			}
			logger.Info("Imported simulation from %s", opts.importPath)
		}
		return p
	}

	p := start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			logger.Info("Received SIGHUP: restarting proxy...")
			if err := p.Close(); err != nil {
				logger.Error("Error stopping proxy for restart: %v", err)
			}
			p = start()
			logger.Info("Proxy restarted.")
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("Received signal %v, shutting down proxy...", sig)
			if err := p.Close(); err != nil {
				logger.Error("Error during shutdown: %v", err)
			}
			logger.Info("Proxy shutdown complete")
			return
		}
	}
}

// loadEnvFile reads a .env-style file and sets environment variables
func loadEnvFile(path string) error {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return fmt.Errorf("invalid file path: %w", err)
		}
		cleanPath = absPath
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logger.Error("Error closing env file: %v", closeErr)
		}
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if setErr := os.Setenv(key, val); setErr != nil {
			logger.Error("Error setting environment variable %s: %v", key, setErr)
		}
	}
	return scanner.Err()
}
