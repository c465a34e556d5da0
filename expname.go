package psana

import (
	"log/slog"
	"sync"
)

// expNameFromDs derives instrument and experiment names from dataset
// specifiers. All specifiers must agree on the experiment; on
// disagreement the first one wins and a warning is logged. Names are
// computed lazily on first use.
type expNameFromDs struct {
	specs  []string
	logger *slog.Logger

	once  sync.Once
	instr string
	exp   string
}

func newExpNameFromDs(specs []string, logger *slog.Logger) *expNameFromDs {
	if logger == nil {
		logger = slog.Default()
	}
	return &expNameFromDs{specs: specs, logger: logger}
}

func (p *expNameFromDs) init() {
	p.once.Do(func() {
		for _, spec := range p.specs {
			if !IsDatasetSpec(spec) {
				continue
			}
			ds := ParseDataset(spec)
			exp := ds.Experiment()
			if exp == "" {
				continue
			}
			if p.exp == "" {
				p.exp = exp
				p.instr = ds.Instrument()
			} else if p.exp != exp {
				p.logger.Warn("datasets belong to different experiments",
					"experiment", p.exp, "conflicting", exp, "spec", spec)
				break
			}
		}
	})
}

// Instrument returns the instrument name.
func (p *expNameFromDs) Instrument() string {
	p.init()
	return p.instr
}

// Experiment returns the experiment name.
func (p *expNameFromDs) Experiment() string {
	p.init()
	return p.exp
}
