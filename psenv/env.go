// Package psenv carries the process-wide, per-data-source context shared
// by every module: job identity, instrument and experiment names,
// calibration directory, configuration store, calibration store and
// alias map, plus the worker identifier in multi-process layouts.
package psenv

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lcls-psana/psana/config"
	"github.com/lcls-psana/psana/metric"
)

// ExpNameProvider supplies instrument and experiment names. Providers
// are allowed to compute them lazily on first use.
type ExpNameProvider interface {
	Instrument() string
	Experiment() string
}

// FromConfig is an ExpNameProvider with fixed names taken from
// configuration.
type FromConfig struct {
	instr string
	exp   string
}

// NewFromConfig creates a provider with fixed instrument and experiment
// names; both may be empty.
func NewFromConfig(instr, exp string) *FromConfig {
	return &FromConfig{instr: instr, exp: exp}
}

// Instrument returns the configured instrument name.
func (p *FromConfig) Instrument() string { return p.instr }

// Experiment returns the configured experiment name.
func (p *FromConfig) Experiment() string { return p.exp }

// AliasMap maps detector alias names to full source specifiers. The
// core only constructs it and hands it to modules; inputs populate it.
type AliasMap struct {
	mu      sync.RWMutex
	aliases map[string]string
}

// NewAliasMap creates an empty alias map.
func NewAliasMap() *AliasMap {
	return &AliasMap{aliases: make(map[string]string)}
}

// Add registers an alias for a source specifier.
func (a *AliasMap) Add(alias, src string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aliases[alias] = src
}

// Resolve returns the source specifier for an alias, or the alias
// itself when unknown.
func (a *AliasMap) Resolve(alias string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if src, ok := a.aliases[alias]; ok {
		return src
	}
	return alias
}

// CalibStore holds per-run calibration objects keyed by (type, source).
// The core constructs it; inputs and modules populate and read it.
type CalibStore struct {
	mu    sync.RWMutex
	items map[calibKey]any
}

type calibKey struct {
	kind string
	src  string
}

// NewCalibStore creates an empty calibration store.
func NewCalibStore() *CalibStore {
	return &CalibStore{items: make(map[calibKey]any)}
}

// Put stores a calibration object, replacing any previous one.
func (c *CalibStore) Put(kind, src string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[calibKey{kind: kind, src: src}] = value
}

// Get retrieves a calibration object.
func (c *CalibStore) Get(kind, src string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[calibKey{kind: kind, src: src}]
	return v, ok
}

// NoWorker is the worker id in the master or single-process case.
const NoWorker = -1

// Env is the per-data-source environment. It is constructed once by the
// data-source builder and never mutated by the core afterwards, except
// through the config and calib stores.
type Env struct {
	jobName  string
	jobID    string
	provider ExpNameProvider
	calibDir string
	cfg      *config.Store
	calib    *CalibStore
	aliases  *AliasMap
	metrics  *metric.MetricsRegistry
	workerID int
}

// Option configures optional Env fields at construction.
type Option func(*Env)

// WithWorkerID marks the environment as belonging to a worker process.
func WithWorkerID(id int) Option {
	return func(e *Env) { e.workerID = id }
}

// WithMetrics attaches the metrics registry modules register their own
// collectors with.
func WithMetrics(reg *metric.MetricsRegistry) Option {
	return func(e *Env) { e.metrics = reg }
}

// New creates the environment for one data source. calibDir may contain
// {instr} and {exp} placeholders which are substituted on access.
func New(jobName string, provider ExpNameProvider, calibDir string, cfg *config.Store, opts ...Option) *Env {
	e := &Env{
		jobName:  jobName,
		jobID:    uuid.NewString(),
		provider: provider,
		calibDir: calibDir,
		cfg:      cfg,
		calib:    NewCalibStore(),
		aliases:  NewAliasMap(),
		workerID: NoWorker,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// JobName returns the job name.
func (e *Env) JobName() string { return e.jobName }

// JobID returns the unique identifier generated for this job instance.
func (e *Env) JobID() string { return e.jobID }

// Instrument returns the instrument name from the experiment-name
// provider.
func (e *Env) Instrument() string { return e.provider.Instrument() }

// Experiment returns the experiment name from the experiment-name
// provider.
func (e *Env) Experiment() string { return e.provider.Experiment() }

// CalibDir returns the calibration directory with {instr} and {exp}
// placeholders substituted.
func (e *Env) CalibDir() string {
	dir := strings.ReplaceAll(e.calibDir, "{instr}", e.Instrument())
	return strings.ReplaceAll(dir, "{exp}", e.Experiment())
}

// ConfigStore returns the configuration store.
func (e *Env) ConfigStore() *config.Store { return e.cfg }

// CalibStore returns the calibration store.
func (e *Env) CalibStore() *CalibStore { return e.calib }

// AliasMap returns the detector alias map.
func (e *Env) AliasMap() *AliasMap { return e.aliases }

// Metrics returns the metrics registry, or nil when the job runs
// unmetered.
func (e *Env) Metrics() *metric.MetricsRegistry { return e.metrics }

// WorkerID returns the worker identifier, or NoWorker in the master or
// single-process case.
func (e *Env) WorkerID() int { return e.workerID }
