// Package main is the entry point for suko.
//
// DESIGN: One binary, two process roles:
//   - serve:  supervisor that keeps a pool of worker processes alive
//   - worker: one HTTP proxy bound to the shared port (SO_REUSEPORT)
//
// The supervisor spawns workers by re-executing itself with the worker
// subcommand, so both roles resolve configuration the same way.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Rushs321/suko/internal/cluster"
	"github.com/Rushs321/suko/internal/config"
	"github.com/Rushs321/suko/internal/gateway"
	"github.com/Rushs321/suko/internal/monitoring"
)

// ANSI color codes
const (
	sukoTeal = "\033[38;2;0;150;136m"
	bold     = "\033[1m"
	reset    = "\033[0m"
)

// ASCII banner for startup
const banner = `
 ███████╗██╗   ██╗██╗  ██╗ ██████╗
 ██╔════╝██║   ██║██║ ██╔╝██╔═══██╗
 ███████╗██║   ██║█████╔╝ ██║   ██║
 ╚════██║██║   ██║██╔═██╗ ██║   ██║
 ███████║╚██████╔╝██║  ██╗╚██████╔╝
 ╚══════╝ ╚═════╝ ╚═╝  ╚═╝ ╚═════╝
`

func printBanner() {
	fmt.Print(sukoTeal + bold + banner + reset + "\n")
}

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/suko/.env first
	configEnv := filepath.Join(homeDir, ".config", "suko", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve", "start":
			runSupervisor(os.Args[2:])
			return
		case "worker":
			runWorker(os.Args[2:])
			return
		case "stats":
			if err := runStats(os.Stdout, os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "stats: %v\n", err)
				os.Exit(1)
			}
			return
		case "version", "-v", "--version":
			PrintVersion()
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}

	// Default: run the supervised pool
	runSupervisor(os.Args[1:])
}

// resolveServeConfig resolves the config for serve and worker.
// Checks: user flag -> filesystem locations -> embedded config.
// Returns raw bytes and source description.
func resolveServeConfig(userConfig string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	homeDir, _ := os.UserHomeDir()

	// Search filesystem in order of preference
	searchPaths := []string{}
	if homeDir != "" {
		searchPaths = append(searchPaths,
			filepath.Join(homeDir, ".config", "suko", "suko.yaml"),
		)
	}
	searchPaths = append(searchPaths,
		"configs/suko.yaml",
		"suko.yaml",
	)

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	if data, err := getEmbeddedConfig(defaultConfigName); err == nil {
		return data, "(embedded) " + defaultConfigName + ".yaml", nil
	}

	return nil, "", fmt.Errorf("no config file found. Specify --config path")
}

// loadConfig resolves and parses the configuration, exiting on failure.
func loadConfig(userConfig string) *config.Config {
	data, source, err := resolveServeConfig(userConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("no config file found. Specify --config path")
	}
	cfg, err := config.LoadFromBytes(data)
	if err != nil {
		log.Fatal().Err(err).Str("config", source).Msg("failed to load configuration")
	}
	log.Debug().Str("config", source).Msg("configuration loaded")
	return cfg
}

// workerArgs are the arguments the supervisor passes to each re-executed worker.
func workerArgs(configPath string, debug bool) []string {
	args := []string{"worker"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if debug {
		args = append(args, "--debug")
	}
	return args
}

// runSupervisor starts the worker pool and keeps it full until SIGINT/SIGTERM.
func runSupervisor(args []string) {
	loadEnvFiles()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	noBanner := fs.Bool("no-banner", false, "suppress startup banner")
	_ = fs.Parse(args) // ExitOnError handles errors

	if !*noBanner {
		printBanner()
	}

	setupLogging(config.Default().Monitoring, *debug, 0)
	cfg := loadConfig(*configPath)
	setupLogging(cfg.Monitoring, *debug, 0)

	workers := cfg.Cluster.Workers()
	log.Info().
		Str("version", Version).
		Int("port", cfg.Server.Port).
		Int("workers", workers).
		Msg("suko starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := cluster.NewSupervisor(workers,
		cluster.ExecSpawner{Args: workerArgs(*configPath, *debug)},
		cluster.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)
	if err := sup.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("supervisor error")
	}

	log.Info().Int("restarts", sup.Restarts()).Msg("suko stopped")
}

// runWorker runs one proxy process until SIGINT/SIGTERM.
func runWorker(args []string) {
	loadEnvFiles()

	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	workerID := cluster.WorkerID()
	setupLogging(config.Default().Monitoring, *debug, workerID)
	cfg := loadConfig(*configPath)
	setupLogging(cfg.Monitoring, *debug, workerID)

	gw, err := gateway.New(cfg,
		gateway.WithWorkerID(workerID),
		gateway.WithVersion(Version),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway")
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := gw.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("worker shutdown error")
		}
	}()

	if err := gw.Start(); err != nil {
		log.Fatal().Err(err).Msg("worker error")
	}

	log.Info().Msg("worker stopped")
}

// setupLogging configures the global zerolog logger.
func setupLogging(cfg config.MonitoringConfig, debug bool, workerID int) {
	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	monitoring.Global(monitoring.LoggerConfig{
		Level:  level,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
		Worker: workerID,
	})
}

// printHelp prints usage information
func printHelp() {
	printBanner()
	fmt.Println("suko - image compression proxy")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  suko [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve        Start the supervised worker pool (default)")
	fmt.Println("  worker       Run a single proxy process")
	fmt.Println("  stats        Summarize recorded completions")
	fmt.Println("  version      Print version information")
	fmt.Println("  help         Show this help message")
	fmt.Println()
	fmt.Println("Server Options:")
	fmt.Println("  suko serve  [--config FILE] [--debug] [--no-banner]")
	fmt.Println("  suko worker [--config FILE] [--debug]")
	fmt.Println()
	fmt.Println("Stats Options:")
	fmt.Println("  suko stats --telemetry FILE [--since DURATION]")
	fmt.Println("  suko stats --db FILE [--since DURATION] [--recent N]")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  PORT, CLUSTER_SIZE, MAX_CLUSTER_SIZE, ACTIVE_LIMIT, QUEUED_LIMIT,")
	fmt.Println("  BEST_FORMAT, ALT_FORMAT_FALLBACK, CODEC_CACHE, CODEC_SIMD,")
	fmt.Println("  CODEC_CONCURRENCY, FETCH_TIMEOUT_MS, FETCH_RETRIES, LOG_LEVEL, TELEMETRY_LOG")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  suko                               Start with the default config")
	fmt.Println("  CLUSTER_SIZE=2 ACTIVE_LIMIT=4 suko Two workers, four requests each")
	fmt.Println("  suko stats --telemetry logs/telemetry.jsonl --since 1h")
}
