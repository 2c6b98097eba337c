package encoding

// MaxStringLength is the longest name or string value that fits the uint16 length prefix.
const MaxStringLength = 1<<16 - 1

// StringSize returns the encoded size of s: a uint16 length followed by its bytes.
func StringSize(s string) int {
	return 2 + len(s)
}
