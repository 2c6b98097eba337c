// Package bp4 writes and reads BP4 datasets: self-describing, step-oriented binary files
// produced collectively by a group of ranks.
//
// A dataset is a directory holding one or more data subfiles (data.0, data.1, ...), a
// metadata file (md.0) and a metadata index file (md.idx). Every rank serializes its
// variable blocks into a process group per step; aggregation chains can funnel many ranks
// into fewer subfiles, and rank 0 writes the merged metadata with one index row per step.
//
// # Core Features
//
//   - Global and local arrays, global and per-rank single values, string values and attributes
//   - Synchronous and deferred puts producing identical bytes
//   - N-to-M aggregation through double-buffered chains
//   - Append with step resume, AppendAfterSteps truncation and active-flag checks
//   - Optional block compression (Zstd, S2, LZ4) and per-block min/max statistics
//   - Random-access reads with N-d hyperslab selections spanning blocks
//
// # Basic Usage
//
// Writing from every rank of a communicator:
//
//	err := comm.Run(4, func(c comm.Comm) error {
//	    w, err := bp4.OpenWriter("run.bp", engine.WithComm(c))
//	    if err != nil {
//	        return err
//	    }
//	    v, _ := bp4.NewVariable("temperature", format.TypeFloat64,
//	        []uint64{400}, []uint64{uint64(c.Rank()) * 100}, []uint64{100})
//	    for range 10 {
//	        w.BeginStep(format.StepAppend, 0)
//	        w.Put(v, values, format.PutDeferred)
//	        w.EndStep()
//	    }
//	    return w.Close(transport.All)
//	})
//
// Reading:
//
//	r, err := bp4.OpenReader("run.bp")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	temps, err := engine.GetAs[float64](r, "temperature", []uint64{50}, []uint64{100}, 9)
//
// # Package Structure
//
// This package wraps the most common entry points. The engine package holds the writer,
// reader and null engine; serializer the BP4 encoding; section the on-disk structures;
// aggregator, comm and transport the collaborators the engines run on.
package bp4

import (
	"github.com/arloliu/bp4/config"
	"github.com/arloliu/bp4/engine"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/internal/hash"
	"github.com/arloliu/bp4/serializer"
)

// OpenWriter creates the dataset directory path, replacing an existing dataset, and opens
// it for writing. It is collective over the communicator given with engine.WithComm.
//
// Parameters:
//   - path: dataset directory
//   - opts: engine options such as engine.WithComm, engine.WithParameters or engine.WithFS
//
// Returns:
//   - *engine.Writer: the open writer
//   - error: an error if the parameters are invalid or the files cannot be created
//
// Example:
//
//	w, err := bp4.OpenWriter("run.bp",
//	    engine.WithParameters(map[string]string{"FlushStepsCount": "4"}),
//	)
func OpenWriter(path string, opts ...engine.Option) (*engine.Writer, error) {
	return engine.OpenWriter(path, format.ModeWrite, opts...)
}

// OpenAppender opens an existing dataset to add steps after its last one, or creates it.
//
// The AppendAfterSteps parameter drops existing steps first; StrictActiveFlag refuses a
// dataset whose previous writer did not close it.
func OpenAppender(path string, opts ...engine.Option) (*engine.Writer, error) {
	return engine.OpenWriter(path, format.ModeAppend, opts...)
}

// OpenReader opens a dataset for random-access reads.
func OpenReader(path string, opts ...engine.Option) (*engine.Reader, error) {
	return engine.OpenReader(path, opts...)
}

// Open opens a dataset with the engine named by engineType, or the engine configured for
// the IO name when engineType is empty.
//
// Example:
//
//	cfg, _ := bp4.LoadConfig("bp4.yaml")
//	e, err := bp4.Open("", "run.bp", format.ModeWrite,
//	    engine.WithConfig(cfg), engine.WithIOName("simulation"))
func Open(engineType, path string, mode format.OpenMode, opts ...engine.Option) (engine.Engine, error) {
	return engine.Open(engineType, path, mode, opts...)
}

// NewVariable defines a variable. See serializer.NewVariable for how the dimensions select
// the shape.
func NewVariable(name string, dtype format.DataType, shape, start, count []uint64) (*serializer.Variable, error) {
	return serializer.NewVariable(name, dtype, shape, start, count)
}

// LoadConfig reads a YAML or TOML configuration file mapping IO names to engines and
// parameters.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

// MemberID returns the id recorded for a variable or attribute name.
func MemberID(name string) uint32 {
	return hash.MemberID(name)
}
