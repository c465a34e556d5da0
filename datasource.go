package psana

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lcls-psana/psana/config"
	"github.com/lcls-psana/psana/errors"
	"github.com/lcls-psana/psana/logging"
	"github.com/lcls-psana/psana/psenv"
	"github.com/lcls-psana/psana/psmod"
	"github.com/lcls-psana/psana/psmp"
)

// inputModuleRole distinguishes the process roles in the parallel
// layout.
type inputModuleRole int

const (
	roleSerial inputModuleRole = iota
	roleMaster
	roleWorker
)

// inputModuleName is the fixed table mapping (classification,
// parallel-mode, master/worker) to the input-module class to load.
func inputModuleName(class InputClass, role inputModuleRole) string {
	switch class {
	case ClassXtc:
		switch role {
		case roleMaster:
			return "PSXtcInput.XtcMPMasterInput"
		case roleWorker:
			return "PSXtcInput.XtcMPWorkerInput"
		default:
			return "PSXtcInput.XtcInputModule"
		}
	case ClassH5:
		return "PSHdf5Input.Hdf5InputModule"
	case ClassShmem:
		switch role {
		case roleMaster:
			return "PSShmemInput.ShmemMPMasterInput"
		case roleWorker:
			return "PSShmemInput.ShmemMPWorkerInput"
		default:
			return "PSShmemInput.ShmemInputModule"
		}
	case ClassIdx:
		return "PSXtcInput.XtcIndexInputModule"
	case ClassSmd:
		return "PSSmdInput.SmdInputModule"
	default:
		return "PSXtcInput.XtcInputModule"
	}
}

// DataSource holds the wired triple (input module, user modules,
// environment) and lazily yields the nested iterators.
type DataSource struct {
	loop  *EventLoop
	coord *psmp.Coordinator

	maxEvents  uint64
	skipEvents uint64
}

// DataSource inspects the input list, chooses and loads the input
// module, loads the user modules, constructs the environment and wires
// everything into an event loop. In parallel mode the master process
// spawns the workers here and runs no user modules itself.
func (f *Framework) DataSource(input []string) (*DataSource, error) {
	cfg := f.cfg

	inputList := input
	if len(inputList) == 0 {
		inputList = cfg.GetListDef(config.Section, "files", nil)
	}
	if len(inputList) == 0 {
		inputList = cfg.GetListDef(config.Section, "input", nil)
	}
	if len(inputList) == 0 {
		return nil, errors.WrapInvalid(errors.ErrNoInput, "Framework", "DataSource", "input validation")
	}

	if err := f.checkModuleCount(); err != nil {
		return nil, err
	}

	class, ok := Classify(inputList)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrMixedInput, strings.Join(inputList, " ")),
			"Framework", "DataSource", "input classification")
	}

	parallel := cfg.GetUintDef(config.Section, "parallel", 0)
	workerID, isWorker := psmp.WorkerInfo()

	role := roleSerial
	if parallel > 0 {
		switch {
		case !class.SupportsParallel():
			f.logger.Warn("parallel mode is not supported for this input type, running in-process",
				"class", class.String())
		case isWorker:
			role = roleWorker
		default:
			role = roleMaster
		}
	}

	iname := inputModuleName(class, role)
	f.logger.Debug("selected input module", "module", iname, "class", class.String())

	// publish the input list where the input module will look for it
	cfg.Put(iname, "files", strings.Join(inputList, " "))

	if skip := cfg.GetUintDef(config.Section, "skip-events", 0); skip > 0 {
		if class.supportsSkip() {
			cfg.Put(iname, "skip-events", strconv.FormatUint(skip, 10))
		} else {
			f.logger.Warn("skip-events is not supported by the active input module",
				"module", iname, "skip-events", skip)
		}
	}

	ds := &DataSource{
		maxEvents:  cfg.GetUintDef(config.Section, "events", 0),
		skipEvents: cfg.GetUintDef(config.Section, "skip-events", 0),
	}

	if role == roleMaster {
		coord, err := psmp.Spawn(int(parallel), f.logger)
		if err != nil {
			return nil, err
		}
		ds.coord = coord
		if m := f.coreMetrics(); m != nil {
			m.WorkersSpawned.Add(float64(len(coord.Workers())))
		}

		// per-worker pipe descriptors for the master-side input module
		cfg.Put(iname, "ready-pipe-fd", strconv.Itoa(coord.ReadyFD()))
		fds := make([]string, 0, len(coord.DataFDs()))
		for _, fd := range coord.DataFDs() {
			fds = append(fds, strconv.Itoa(fd))
		}
		cfg.Put(iname, "data-pipe-fds", strings.Join(fds, " "))
	}

	env, err := f.buildEnv(inputList, class, workerID, isWorker)
	if err != nil {
		if ds.coord != nil {
			ds.coord.Close()
		}
		return nil, err
	}

	// the master runs no user modules; the computation happens in the
	// workers
	var modules []psmod.Module
	if role != roleMaster {
		modules, err = f.loader.LoadModules(f.moduleNames, cfg)
		if err != nil {
			if ds.coord != nil {
				ds.coord.Close()
			}
			return nil, err
		}
	}

	inputModule, err := f.loader.LoadInputModule(iname, cfg)
	if err != nil {
		if ds.coord != nil {
			ds.coord.Close()
		}
		return nil, err
	}

	joblog := logging.NewLogger("EventLoop", env.JobName(), f.logConn, f.logger)
	ds.loop = NewEventLoop(inputModule, modules, env,
		WithLogger(f.logger), WithJobLogger(joblog), WithMetrics(f.coreMetrics()))
	return ds, nil
}

// buildEnv constructs the environment for one data source.
func (f *Framework) buildEnv(inputList []string, class InputClass, workerID int, isWorker bool) (*psenv.Env, error) {
	cfg := f.cfg

	name := jobName(cfg, inputList)
	f.logger.Debug("job name", "name", name)

	var provider psenv.ExpNameProvider
	if exp := cfg.GetStrDef(config.Section, "experiment", ""); exp != "" {
		instr := cfg.GetStrDef(config.Section, "instrument", "")
		provider = psenv.NewFromConfig(instr, exp)
	} else if class == ClassXtc || class == ClassIdx || class == ClassSmd {
		provider = newExpNameFromDs(inputList, f.logger)
	} else {
		provider = psenv.NewFromConfig("", "")
	}

	calibDir := cfg.GetStrDef(config.Section, "calib-dir", "/reg/d/psdm/{instr}/{exp}/calib")

	var opts []psenv.Option
	if isWorker {
		opts = append(opts, psenv.WithWorkerID(workerID))
	}
	if f.metrics != nil {
		opts = append(opts, psenv.WithMetrics(f.metrics))
	}

	env := psenv.New(name, provider, calibDir, cfg, opts...)
	f.logger.Debug("environment constructed",
		"instrument", env.Instrument(), "experiment", env.Experiment(), "calib_dir", env.CalibDir())
	return env, nil
}

// Events returns the iterator over every event of the data source.
func (ds *DataSource) Events() *EventIter {
	return &EventIter{loop: ds.loop, stop: TransitionNone}
}

// Steps returns the iterator over every calibration cycle of the data
// source.
func (ds *DataSource) Steps() *StepIter {
	return &StepIter{loop: ds.loop, stop: TransitionNone}
}

// Runs returns the iterator over the data source's runs.
func (ds *DataSource) Runs() *RunIter {
	return &RunIter{loop: ds.loop}
}

// Env returns the environment object.
func (ds *DataSource) Env() *psenv.Env { return ds.loop.Env() }

// MaxEvents returns the configured event cap, 0 meaning unbounded.
func (ds *DataSource) MaxEvents() uint64 { return ds.maxEvents }

// SkipEvents returns the configured skip count.
func (ds *DataSource) SkipEvents() uint64 { return ds.skipEvents }

// Close shuts down the event loop and, in the master role, the worker
// pipe topology.
func (ds *DataSource) Close() error {
	err := ds.loop.Close()
	if ds.coord != nil {
		if cerr := ds.coord.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
