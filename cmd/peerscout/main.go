package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"peerscout/internal/config"
	"peerscout/internal/directory"
	"peerscout/internal/filter"
	"peerscout/internal/geo"
	"peerscout/internal/logging"
	"peerscout/internal/probe"
	"peerscout/internal/scout"
)

const usage = `peerscout - find low-latency peers for a chain network

Usage:
  peerscout scout --network <name> [flags]
  peerscout chains [--config <path>]
  peerscout help

Scout flags:
  --config <path>            YAML config file
  --network <name>           chain network to scout peers for
  --target-countries <list>  comma-separated country codes (default CA,US)
  --desired-count <n>        number of peers to find (default 5)
  --max-latency <ms>         latency ceiling in milliseconds (default 50)
  --max-attempts <n>         directory fetch rounds (default 5)
  --output <list|string>     result rendering (default list)
  --timeout <dur>            wall clock for the whole run, e.g. 2m
  --debug                    enable debug logging

The geolocation step needs an ipinfo.io token in IPINFO_ACCESS_TOKEN.
Every config field can also be set as PEERSCOUT_<NAME>.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "scout":
		handleScout(os.Args[2:])
	case "chains":
		handleChains(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func handleScout(args []string) {
	fs := flag.NewFlagSet("scout", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	network := fs.String("network", "", "chain network to scout peers for")
	countries := fs.String("target-countries", "", "comma-separated target country codes")
	desiredCount := fs.Uint("desired-count", 0, "number of peers to find")
	maxLatency := fs.Float64("max-latency", 0, "latency ceiling in milliseconds")
	maxAttempts := fs.Uint("max-attempts", 0, "maximum directory fetch rounds")
	output := fs.String("output", "", "output format: list or string")
	timeout := fs.Duration("timeout", 0, "wall clock for the whole run")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if err := config.FromEnv(&cfg); err != nil {
		fatal(err)
	}
	overrideScout(&cfg, *network, *countries, *desiredCount, *maxLatency, *maxAttempts, *output)
	if *debug {
		cfg.LogLevel = "debug"
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()
	if *timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, *timeout)
		defer cancelTimeout()
	}

	dir := directory.NewClient(cfg.Directory.BaseURL, logger)
	if err := checkNetwork(ctx, dir, cfg.Network); err != nil {
		fatal(err)
	}

	pinger, err := probe.NewPinger(cfg.Probe.Network, logger)
	if err != nil {
		fatal(err)
	}
	resolver := geo.NewClient(cfg.Geo.AccessToken, logger, geoOptions(cfg)...)

	pipeline := filter.NewPipeline(pinger, resolver, logger, filter.Options{
		TargetCountries:  cfg.TargetCountries,
		MaxLatencyMs:     cfg.MaxLatencyMs,
		MaxPeers:         cfg.DesiredCount,
		ProbeParallelism: cfg.Probe.Parallelism,
	})
	sc := scout.New(scout.Config{
		Network:         cfg.Network,
		TargetCountries: cfg.TargetCountries,
		MaxLatencyMs:    cfg.MaxLatencyMs,
		DesiredCount:    cfg.DesiredCount,
		MaxAttempts:     cfg.MaxAttempts,
	}, dir, pipeline, logger)

	result, err := sc.Run(ctx)
	if err != nil {
		logger.Warn("run interrupted", zap.Error(err))
	}

	peers := result.Strings()
	if len(peers) == 0 {
		logger.Error("no qualified peers found based on the given criteria")
		os.Exit(1)
	}
	if uint(len(peers)) < cfg.DesiredCount {
		logger.Warn("found fewer peers than requested",
			zap.Int("found", len(peers)),
			zap.Uint("desired_count", cfg.DesiredCount))
	}
	render(os.Stdout, cfg.Output, peers)
}

func handleChains(args []string) {
	fs := flag.NewFlagSet("chains", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if err := config.FromEnv(&cfg); err != nil {
		fatal(err)
	}
	config.ApplyDefaults(&cfg)

	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	dir := directory.NewClient(cfg.Directory.BaseURL, logger)
	chains, err := dir.Chains(ctx)
	if err != nil {
		fatal(err)
	}
	for _, name := range chains {
		fmt.Println(name)
	}
}

// checkNetwork verifies the directory knows the network and serves live
// peers for it, suggesting close matches on a miss.
func checkNetwork(ctx context.Context, dir *directory.Client, network string) error {
	chains, err := dir.Chains(ctx)
	if err != nil {
		return fmt.Errorf("list supported networks: %w", err)
	}
	if !contains(chains, network) {
		if matches := directory.Suggest(network, chains); len(matches) > 0 {
			return fmt.Errorf("network %q is not supported, did you mean %s?",
				network, strings.Join(matches, ", "))
		}
		return fmt.Errorf("network %q is not supported", network)
	}
	details, err := dir.Details(ctx, network)
	if err != nil {
		return fmt.Errorf("fetch chain details: %w", err)
	}
	if !details.Services.LivePeers.Active {
		return fmt.Errorf("live peers service is not available for %s", details.Name)
	}
	return nil
}

func render(w io.Writer, format string, peers []string) {
	switch format {
	case "string":
		fmt.Fprintln(w, strings.Join(peers, ","))
	default:
		for _, peer := range peers {
			fmt.Fprintf(w, "- %s\n", peer)
		}
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func overrideScout(cfg *config.Config, network, countries string, desiredCount uint, maxLatency float64, maxAttempts uint, output string) {
	if network != "" {
		cfg.Network = network
	}
	if countries != "" {
		cfg.TargetCountries = splitList(countries)
	}
	if desiredCount != 0 {
		cfg.DesiredCount = desiredCount
	}
	if maxLatency != 0 {
		cfg.MaxLatencyMs = maxLatency
	}
	if maxAttempts != 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if output != "" {
		cfg.Output = output
	}
}

func geoOptions(cfg config.Config) []geo.Option {
	var opts []geo.Option
	if cfg.Geo.BaseURL != "" {
		opts = append(opts, geo.WithBaseURL(cfg.Geo.BaseURL))
	}
	return opts
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
