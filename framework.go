package psana

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/lcls-psana/psana/config"
	"github.com/lcls-psana/psana/errors"
	"github.com/lcls-psana/psana/loader"
	"github.com/lcls-psana/psana/metric"
	"github.com/lcls-psana/psana/scripted"
)

// Framework is the entry point: it owns the configuration store, the
// module loader and the metrics registry, and builds data sources over
// input specifier lists.
type Framework struct {
	cfg     *config.Store
	reg     *loader.Registry
	loader  *loader.Loader
	scripts *scripted.Host
	metrics *metric.MetricsRegistry
	logger  *slog.Logger
	logConn *nats.Conn

	moduleNames []string
}

// FrameworkOption configures the framework.
type FrameworkOption func(*Framework)

// WithFrameworkLogger sets the framework's logger.
func WithFrameworkLogger(logger *slog.Logger) FrameworkOption {
	return func(f *Framework) { f.logger = logger }
}

// WithFactoryRegistry supplies the in-process module factory registry.
func WithFactoryRegistry(reg *loader.Registry) FrameworkOption {
	return func(f *Framework) { f.reg = reg }
}

// WithMetricsRegistry attaches a metrics registry.
func WithMetricsRegistry(mr *metric.MetricsRegistry) FrameworkOption {
	return func(f *Framework) { f.metrics = mr }
}

// WithLogConn supplies the NATS connection job loggers publish to so a
// running job can be watched live; nil keeps logging local-only.
func WithLogConn(nc *nats.Conn) FrameworkOption {
	return func(f *Framework) { f.logConn = nc }
}

// NewFramework initializes the configuration store from an optional
// configuration file plus command-line options, and prepares the module
// loader. An empty cfgFile skips file loading.
func NewFramework(cfgFile string, options map[string]string, opts ...FrameworkOption) (*Framework, error) {
	f := &Framework{logger: slog.Default()}
	for _, o := range opts {
		o(f)
	}
	if f.reg == nil {
		f.reg = loader.NewRegistry()
	}

	f.cfg = config.NewStore()
	if cfgFile != "" {
		if err := f.cfg.Load(cfgFile); err != nil {
			return nil, err
		}
	}

	// apply options deterministically; they override file values
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f.cfg.PutOption(name, options[name])
	}

	loaderOpts := []loader.Option{loader.WithLogger(f.logger)}
	if dir := f.cfg.GetStrDef(config.Section, "script-dir", ""); dir != "" {
		f.scripts = scripted.NewHost(dir, f.cfg, f.logger)
		loaderOpts = append(loaderOpts, loader.WithScriptHost(f.scripts))
	}
	if dir := f.cfg.GetStrDef(config.Section, "lib-dir", ""); dir != "" {
		loaderOpts = append(loaderOpts, loader.WithLibDir(dir))
	}
	f.loader = loader.New(f.reg, loaderOpts...)

	f.moduleNames = f.cfg.GetListDef(config.Section, "modules", nil)
	return f, nil
}

// ConfigStore returns the framework's configuration store.
func (f *Framework) ConfigStore() *config.Store { return f.cfg }

// ModuleNames returns the configured user-module specifiers.
func (f *Framework) ModuleNames() []string { return f.moduleNames }

// Close releases resources owned by the framework, notably the
// scripted-module host.
func (f *Framework) Close() {
	if f.scripts != nil {
		f.scripts.Close()
	}
}

// coreMetrics returns the loop metrics, nil when unmetered.
func (f *Framework) coreMetrics() *metric.Metrics {
	if f.metrics == nil {
		return nil
	}
	return f.metrics.CoreMetrics()
}

// jobName derives the job name from the configured value; otherwise
// from the first input: "<exp>[-r<run>]" for a dataset specifier, the
// file stem for a path.
func jobName(cfg *config.Store, inputs []string) string {
	if name := cfg.GetStrDef(config.Section, "job-name", ""); name != "" {
		return name
	}
	if len(inputs) == 0 {
		return ""
	}
	base := inputs[0]
	if IsDatasetSpec(base) {
		ds := ParseDataset(base)
		name := ds.Experiment()
		if run := ds.Value("run"); run != "" {
			name += "-r" + run
		}
		return name
	}
	return fileStem(base)
}

// fileStem returns the base name of a path without its extension.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// checkModuleCount verifies at least one module is configured before a
// data source is built.
func (f *Framework) checkModuleCount() error {
	if len(f.moduleNames) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w", errors.ErrNoModules),
			"Framework", "DataSource", "module configuration")
	}
	return nil
}

// DumpConfigFile prints the configuration file to stdout when the
// dump_config_file debug option is set; the option is consumed.
func DumpConfigFile(cfgFile string, options map[string]string) {
	if _, ok := options["psana.dump_config_file"]; !ok {
		return
	}
	delete(options, "psana.dump_config_file")
	if cfgFile == "" {
		return
	}
	data, err := os.ReadFile(cfgFile)
	if err != nil {
		fmt.Printf("--------- psana config file: %s ------------\n ** unable to open file **\n", cfgFile)
		return
	}
	fmt.Printf("--------- psana config file: %s ------------\n%s\n------- end psana config file ---------\n", cfgFile, data)
}
