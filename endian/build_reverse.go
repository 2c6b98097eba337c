//go:build bp4_reverse_endian

package endian

// ReverseEndianBuild reports whether the binary was built to write and append in the
// non-native byte order.
const ReverseEndianBuild = true
