package engine

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/section"
	"github.com/arloliu/bp4/transport"
)

type transportProfile struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Report map[string]any `json:"report"`
}

type rankProfile struct {
	Rank       int                `json:"rank"`
	Engine     map[string]any     `json:"bp4"`
	Data       []transportProfile `json:"data,omitempty"`
	Metadata   []transportProfile `json:"metadata,omitempty"`
	DataBytes  uint64             `json:"data_bytes"`
	SubStream  int                `json:"substream"`
	Aggregator bool               `json:"consumer"`
}

func transportProfiles(m *transport.Manager) []transportProfile {
	names := m.Names()
	types := m.TransportTypes()
	profilers := m.Profilers()

	out := make([]transportProfile, len(names))
	for i := range names {
		out[i] = transportProfile{Name: names[i], Type: types[i], Report: profilers[i].Report()}
	}

	return out
}

// writeProfilingJSON gathers every rank's timers on rank 0, which writes them as one
// JSON array.
func (w *Writer) writeProfilingJSON() error {
	var dataBytes uint64
	for _, p := range w.data.Profilers() {
		dataBytes += p.Bytes("wbytes")
	}

	local, err := json.Marshal(rankProfile{
		Rank:       w.comm.Rank(),
		Engine:     w.profiler.Report(),
		Data:       transportProfiles(w.data),
		Metadata:   transportProfiles(w.metadata),
		DataBytes:  dataBytes,
		SubStream:  w.agg.SubStreamIndex(),
		Aggregator: w.agg.IsConsumer(),
	})
	if err != nil {
		return errors.Wrap(err, "encode profiling report")
	}

	all, err := w.comm.Gatherv(local, 0)
	if err != nil {
		return err
	}
	if !w.isRoot() {
		return nil
	}

	var out bytes.Buffer
	out.WriteByte('[')
	for i, r := range all {
		if i > 0 {
			out.WriteString(",\n")
		}
		out.Write(r)
	}
	out.WriteString("]\n")

	m, err := transport.NewManager(w.fs)
	if err != nil {
		return err
	}
	if err := m.OpenFiles([]string{w.filePath(section.ProfilingFileName)}, format.ModeWrite, false); err != nil {
		return err
	}
	if err := m.WriteFiles(out.Bytes(), transport.All); err != nil {
		_ = m.CloseFiles(transport.All)
		return err
	}

	return m.CloseFiles(transport.All)
}
