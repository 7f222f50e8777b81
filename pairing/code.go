package pairing

import "fmt"

// FormatCode renders the leading bytes of a verification string as a
// zero-padded decimal code of the given length. Both peers derive the same
// code from the same verification string. digits outside [1, 18] selects
// DefaultCodeDigits.
func FormatCode(verification []byte, digits int) string {
	if digits < 1 || digits > 18 {
		digits = DefaultCodeDigits
	}
	var n uint64
	for i := 0; i < len(verification) && i < 8; i++ {
		n = n<<8 | uint64(verification[i])
	}
	mod := uint64(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, n%mod)
}
