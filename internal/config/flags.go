package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagLogFile    = flag.String("log-file", "", "Write logs to a rotating file")
	flagMaxIndex   = flag.Uint("max-index", 0, "Inclusive maximum index per output mesh")
	flagNoPost     = flag.Bool("no-post-transform", false, "Disable the vertex cache reorder pass")
	flagPolicy     = flag.String("index-width-policy", "", "Unsupported index width policy: skip, reject or upgrade")
	flagWorkers    = flag.Int("workers", -1, "Concurrent mesh workers (0 = GOMAXPROCS)")
	flagWireframe  = flag.Bool("wireframe", false, "Generate wireframe overlays before splitting")
	flagMetricFile = flag.String("metrics-file", "", "Write Prometheus metrics to this file")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag command-line arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagMaxIndex > 0 {
		cfg.Split.MaxIndex = uint32(*flagMaxIndex)
	}
	if *flagNoPost {
		cfg.Split.DisablePostTransform = true
	}
	if *flagPolicy != "" {
		cfg.Split.UnsupportedIndexWidth = *flagPolicy
	}
	if *flagWorkers >= 0 {
		cfg.Split.Workers = *flagWorkers
	}
	if *flagWireframe {
		cfg.Wireframe.Generate = true
	}
	if *flagMetricFile != "" {
		cfg.Metrics.File = *flagMetricFile
	}
}
