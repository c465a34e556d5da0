package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, " ") }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigPath    string
	configChanged bool
	Modules       stringList
	Experiment    string
	JobName       string
	CalibDir      string
	NumEvents     uint
	SkipEvents    uint
	NumCPU        uint
	Options       stringList

	LogLevel    string
	LogFormat   string
	LogNATSURL  string
	MetricsPort int

	Datasets []string
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigPath, "c", "", "configuration file, by default use psana.cfg if it exists")
	fs.StringVar(&cfg.ConfigPath, "config", "", "configuration file, by default use psana.cfg if it exists")
	fs.Var(&cfg.Modules, "m", "module name, more than one possible")
	fs.Var(&cfg.Modules, "module", "module name, more than one possible")
	fs.StringVar(&cfg.Experiment, "e", "", "experiment name, format: XPP:xpp12311 or xpp12311")
	fs.StringVar(&cfg.Experiment, "experiment", "", "experiment name, format: XPP:xpp12311 or xpp12311")
	fs.StringVar(&cfg.JobName, "j", "", "job name, default is to generate from input file names")
	fs.StringVar(&cfg.JobName, "job-name", "", "job name, default is to generate from input file names")
	fs.StringVar(&cfg.CalibDir, "b", "", "calibration directory name, may include {exp} and {instr}")
	fs.StringVar(&cfg.CalibDir, "calib-dir", "", "calibration directory name, may include {exp} and {instr}")
	fs.UintVar(&cfg.NumEvents, "n", 0, "maximum number of events to process, 0 means all")
	fs.UintVar(&cfg.NumEvents, "num-events", 0, "maximum number of events to process, 0 means all")
	fs.UintVar(&cfg.SkipEvents, "s", 0, "number of events to skip")
	fs.UintVar(&cfg.SkipEvents, "skip-events", 0, "number of events to skip")
	fs.UintVar(&cfg.NumCPU, "p", 0, "number greater than 0 enables multi-processing")
	fs.UintVar(&cfg.NumCPU, "num-cpu", 0, "number greater than 0 enables multi-processing")
	fs.Var(&cfg.Options, "o", "configuration option, format: section.option[=value]")
	fs.Var(&cfg.Options, "option", "configuration option, format: section.option[=value]")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("PSANA_LOG_LEVEL", "info"),
		"log level: debug, info, warn, error (env: PSANA_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("PSANA_LOG_FORMAT", "text"),
		"log format: json, text (env: PSANA_LOG_FORMAT)")
	fs.StringVar(&cfg.LogNATSURL, "log-nats-url",
		getEnv("PSANA_LOG_NATS_URL", ""),
		"NATS URL to publish job logs to, empty to disable (env: PSANA_LOG_NATS_URL)")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", 0,
		"Prometheus metrics port, 0 to disable")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - event-processing framework for LCLS detector data\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] dataset ...\n\nOptions:\n", os.Args[0])
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Datasets = fs.Args()

	cfg.configChanged = false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "c" || f.Name == "config" {
			cfg.configChanged = true
		}
	})

	return cfg, nil
}

// buildOptions translates command-line flags into configuration
// overrides, mirroring the precedence rules of the configuration store:
// flags override file values.
func buildOptions(cfg *CLIConfig) (string, map[string]string) {
	options := make(map[string]string)

	// if -c is not specified and no modules were given on the command
	// line, read psana.cfg when present
	cfgFile := cfg.ConfigPath
	if !cfg.configChanged && len(cfg.Modules) == 0 {
		if _, err := os.Stat("psana.cfg"); err == nil {
			cfgFile = "psana.cfg"
		}
	}

	if len(cfg.Modules) > 0 {
		options["psana.modules"] = strings.Join(cfg.Modules, " ")
	}

	if cfg.Experiment != "" {
		instr, exp := splitExperiment(cfg.Experiment)
		options["psana.instrument"] = instr
		options["psana.experiment"] = exp
	}

	if cfg.JobName != "" {
		options["psana.job-name"] = cfg.JobName
	}
	if cfg.CalibDir != "" {
		options["psana.calib-dir"] = cfg.CalibDir
	}
	if cfg.NumEvents > 0 {
		options["psana.events"] = fmt.Sprintf("%d", cfg.NumEvents)
	}
	if cfg.SkipEvents > 0 {
		options["psana.skip-events"] = fmt.Sprintf("%d", cfg.SkipEvents)
	}
	if cfg.NumCPU > 0 {
		options["psana.parallel"] = fmt.Sprintf("%d", cfg.NumCPU)
	}

	// -o options may override everything above
	for _, opt := range cfg.Options {
		name := opt
		value := ""
		if p := strings.Index(opt, "="); p >= 0 {
			name = opt[:p]
			value = opt[p+1:]
		}
		options[name] = value
	}

	return cfgFile, options
}

// splitExperiment parses "[INSTR:]exp"; without an explicit instrument
// the uppercased first three characters of the experiment are used.
func splitExperiment(arg string) (instr, exp string) {
	if p := strings.Index(arg, ":"); p >= 0 {
		return arg[:p], arg[p+1:]
	}
	exp = arg
	n := 3
	if len(exp) < n {
		n = len(exp)
	}
	return strings.ToUpper(exp[:n]), exp
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
