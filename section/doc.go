// Package section defines the fixed binary structures of a BP4 dataset.
//
// A dataset is a directory holding three kinds of files:
//
//	<name>/data.<n>   one per writing rank (N-to-N) or per aggregator (N-to-M)
//	<name>/md.0       consolidated metadata, written by rank 0 only
//	<name>/md.idx     metadata index, one 64-byte row per step, written by rank 0 only
//
// # File Header
//
// Every file starts with the same 64-byte header:
//
//	Bytes  | Field        | Description
//	-------|--------------|-----------------------------------------------
//	0-23   | Tag          | "BP v1.0.0 " + file kind, zero padded
//	24-26  | Version      | ASCII major, minor, patch digits
//	27     | reserved     |
//	28     | Endianness   | 0 = little-endian, 1 = big-endian
//	29     | BP version   | always 4
//	30     | Active flag  | index file only, 1 while a writer is live
//	31-63  | reserved     | zero
//
// MakeHeader returns a HeaderLayout with the absolute positions of the endianness and active
// flag bytes so the active flag can be rewritten in place on open and on close.
//
// # Index File
//
// After the header the index file is a sequence of IndexRow values, one per step, each
// pointing into the metadata file:
//
//	┌──────┬──────┬──────────────┬───────────────┬────────────────┬────────────┬───────────┬─────────┐
//	│ step │ rank │ pgIndexStart │ varIndexStart │ attrIndexStart │ stepEndPos │ timestamp │ padding │
//	└──────┴──────┴──────────────┴───────────────┴────────────────┴────────────┴───────────┴─────────┘
//
// # Metadata File
//
// Each step occupies the byte range [pgIndexStart, stepEndPos) and holds a StepMetadata:
// the process group index of every rank, then one ElementIndex per variable merged across
// ranks, then one ElementIndex per attribute. Each block of a variable is described by a
// Characteristics set carrying its data file, offsets, dimensions and statistics.
//
// # Data Files
//
// Data files hold process groups framed by "[PGI" and "PGI]". Inside, variable blocks are
// framed by "[VMD"/"VMD]" and attributes by "[AMD"/"AMD]". Readers never walk data files:
// every payload is reached through the offsets recorded in the metadata.
//
// All multi-byte fields use the byte order named by the file's endianness flag.
package section
