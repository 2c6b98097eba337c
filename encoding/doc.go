// Package encoding provides the fixed-width binary primitives every BP4 structure is built from.
//
// Values are written through an endian.EndianEngine chosen once per file:
//
//	enc := encoding.NewEncoder(buf, endian.WriterEngine())
//	enc.PutUint32(count)
//	enc.PutString(name)
//	if err := enc.Err(); err != nil {
//	    return err
//	}
//
// and read back with a Decoder built from the engine named by the file header:
//
//	dec := encoding.NewDecoder(data, endian.EngineFor(littleEndian))
//	count := dec.Uint32()
//	name := dec.ReadString()
//
// Both types keep the first error and turn every later call into a no-op, so a sequence of
// puts or reads is checked once at the end.
//
// CopyToBuffer and CopyFromBuffer move single numeric values; EncodeSlice and DecodeSlice move
// whole payloads and take a plain memory copy when the requested byte order is the native one.
package encoding
