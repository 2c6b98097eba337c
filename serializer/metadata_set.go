package serializer

// MetadataSet is the step and file-length accounting of one writer.
type MetadataSet struct {
	// CurrentStep counts completed steps, starting at 0.
	CurrentStep uint64
	// TimeStep is the step number recorded in process groups and index rows, starting at 1.
	TimeStep uint32
	// DataPGCount counts process groups written since the last collective metadata write.
	DataPGCount int
	// PreDataFileLength is the size of this rank's data file before the writer opened it.
	PreDataFileLength uint64
	// PreMetadataFileLength is the size of the metadata file before the writer opened it.
	PreMetadataFileLength uint64
	// MetadataFileLength is the number of bytes written to the metadata file so far.
	MetadataFileLength uint64
}

// NewMetadataSet returns the accounting of a writer starting a new dataset.
func NewMetadataSet() MetadataSet {
	return MetadataSet{TimeStep: 1}
}

// Resume continues numbering after lastStep completed steps of an existing dataset.
func (m *MetadataSet) Resume(lastStep uint64) {
	m.CurrentStep += lastStep
	m.TimeStep += uint32(lastStep) //nolint:gosec
}

// SetPreMetadataFileLength records the existing metadata file size and makes it the
// base of new metadata offsets.
func (m *MetadataSet) SetPreMetadataFileLength(n uint64) {
	m.PreMetadataFileLength = n
	m.MetadataFileLength = n
}

// Advance moves to the next step.
func (m *MetadataSet) Advance() {
	m.CurrentStep++
	m.TimeStep++
}
