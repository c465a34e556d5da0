// Package psmp establishes the master/worker process topology for
// parallel ingestion: one "ready" pipe shared by all workers, one
// "data" pipe per worker, and signal dispositions that keep the master
// alive when a worker dies. The concrete protocol on the pipes belongs
// to the input modules; this package only builds the plumbing.
package psmp

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/lcls-psana/psana/errors"
)

// MaxWorkers caps the number of worker processes.
const MaxWorkers = 255

// Environment variables through which a worker finds its identity and
// its pipe ends. The pipe file descriptors are fixed by ExtraFiles
// ordering: the shared ready pipe's write end lands on fd 3, the
// worker's data pipe read end on fd 4.
const (
	EnvWorkerID = "PSANA_WORKER_ID"

	readyPipeFD = 3
	dataPipeFD  = 4
)

// WorkerID describes one worker process from the master's point of
// view.
type WorkerID struct {
	// WorkerID is a small non-negative worker identifier.
	WorkerID int
	// Pid is the worker's process id.
	Pid int
	// DataPipe is the master-side (write-only) end of the worker's
	// data pipe.
	DataPipe *os.File
}

// Coordinator holds the master side of the worker topology.
type Coordinator struct {
	workers []WorkerID
	ready   *os.File // master-side read end of the shared ready pipe
	logger  *slog.Logger
}

// Spawn starts n worker processes by re-executing the current binary.
// Each worker inherits the shared ready pipe's write end and its own
// data pipe's read end; the master keeps the opposite ends. SIGCHLD
// and SIGPIPE are ignored in the master so finished workers do not
// become zombies and a dead worker's closed pipe does not kill the
// master.
func Spawn(n int, logger *slog.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if n <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: worker count %d", errors.ErrInvalidConfig, n),
			"Coordinator", "Spawn", "worker count validation")
	}
	if n > MaxWorkers {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %d > %d", errors.ErrTooManyWorkers, n, MaxWorkers),
			"Coordinator", "Spawn", "worker count validation")
	}

	signal.Ignore(syscall.SIGCHLD, syscall.SIGPIPE)

	readyRead, readyWrite, err := os.Pipe()
	if err != nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: pipe: %v", errors.ErrOS, err),
			"Coordinator", "Spawn", "ready pipe creation")
	}

	exe, err := os.Executable()
	if err != nil {
		readyRead.Close()
		readyWrite.Close()
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: executable lookup: %v", errors.ErrOS, err),
			"Coordinator", "Spawn", "worker binary lookup")
	}

	c := &Coordinator{ready: readyRead, logger: logger}

	for i := 0; i < n; i++ {
		dataRead, dataWrite, err := os.Pipe()
		if err != nil {
			c.Close()
			readyWrite.Close()
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: pipe: %v", errors.ErrOS, err),
				"Coordinator", "Spawn", "data pipe creation")
		}

		cmd := exec.Command(exe, os.Args[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.ExtraFiles = []*os.File{readyWrite, dataRead}
		cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", EnvWorkerID, i))

		if err := cmd.Start(); err != nil {
			dataRead.Close()
			dataWrite.Close()
			c.Close()
			readyWrite.Close()
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: starting worker %d: %v", errors.ErrOS, i, err),
				"Coordinator", "Spawn", "worker start")
		}

		// the worker owns its copies now
		dataRead.Close()

		// do not collect the worker: SIGCHLD is ignored and the
		// process must not be waited on
		pid := cmd.Process.Pid
		_ = cmd.Process.Release()

		c.workers = append(c.workers, WorkerID{WorkerID: i, Pid: pid, DataPipe: dataWrite})
		logger.Debug("spawned worker", "worker", i, "pid", pid)
	}

	// only workers hold the write end of the ready pipe
	readyWrite.Close()

	logger.Info("master/worker topology established", "workers", n)
	return c, nil
}

// Workers returns the spawned worker records.
func (c *Coordinator) Workers() []WorkerID { return c.workers }

// ReadyPipe returns the master-side read end of the shared ready pipe.
func (c *Coordinator) ReadyPipe() *os.File { return c.ready }

// ReadyFD returns the ready pipe's descriptor for config publication.
func (c *Coordinator) ReadyFD() int { return int(c.ready.Fd()) }

// DataFDs returns the master-side data pipe descriptors, ordered by
// worker id, for config publication.
func (c *Coordinator) DataFDs() []int {
	fds := make([]int, len(c.workers))
	for i, w := range c.workers {
		fds[i] = int(w.DataPipe.Fd())
	}
	return fds
}

// Close releases every pipe the master owns.
func (c *Coordinator) Close() error {
	var firstErr error
	if c.ready != nil {
		if err := c.ready.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.ready = nil
	}
	for _, w := range c.workers {
		if w.DataPipe == nil {
			continue
		}
		if err := w.DataPipe.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.workers = nil
	return firstErr
}

// WorkerInfo reports whether this process is a worker and, if so, its
// identifier.
func WorkerInfo() (int, bool) {
	v, ok := os.LookupEnv(EnvWorkerID)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(v)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// WorkerPipes returns the worker-side pipe ends inherited from the
// master: the shared ready pipe's write end and this worker's data
// pipe read end.
func WorkerPipes() (ready *os.File, data *os.File) {
	ready = os.NewFile(uintptr(readyPipeFD), "psana-ready-pipe")
	data = os.NewFile(uintptr(dataPipeFD), "psana-data-pipe")
	return ready, data
}
