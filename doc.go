// Package psana implements the event-processing pipeline for detector
// data from an X-ray free-electron laser facility.
//
// Raw data arrives as a stream of transitions organized into a
// three-level hierarchy: runs contain calibration cycles (steps), which
// contain events. An input module produces the transition stream; the
// event loop drives it through an ordered chain of user analysis
// modules, honoring their flow-control verdicts, and surfaces the
// hierarchy as nested lazy iterators.
//
// # Usage
//
// A job is assembled through the Framework, which owns configuration
// and the module loader:
//
//	fwk, err := psana.NewFramework("psana.cfg", nil)
//	if err != nil { ... }
//	defer fwk.Close()
//
//	ds, err := fwk.DataSource([]string{"exp=xpptut15:run=54"})
//	if err != nil { ... }
//	defer ds.Close()
//
//	events := ds.Events()
//	for {
//		evt, err := events.Next()
//		if err != nil { ... }
//		if evt == nil {
//			break
//		}
//		// evt has been seen by every configured module
//	}
//
// The three iterator levels nest: DataSource.Runs yields Run objects,
// Run.Steps yields Step objects, Step.Events yields events. A boundary
// transition consumed by an inner iterator is put back into the loop
// for the enclosing one, so no transition is ever dropped.
//
// # Modules
//
// User modules implement the psmod.Module interface, usually by
// embedding psmod.Base. Modules are addressed by specifiers of the form
// "Package.Class[:instance]" and resolved by the loader package: from
// the in-process factory registry, from Lua scripts via the scripted
// package, or from shared libraries.
//
// # Parallel processing
//
// With the "parallel" configuration key set (CLI flag -p) and an input
// type that supports it, the builder starts worker processes through the
// psmp package, which re-executes the current binary once per worker:
// each worker runs the full module pipeline over events
// fed to it by the master through per-worker pipes; the master runs no
// user modules.
package psana
