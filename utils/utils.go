// Package utils holds small helpers shared across the module.
package utils

import (
	"unicode/utf8"
)

// ContainsNonASCII checks if a string contains any non-ASCII characters
// (bytes > 127). Used to decide whether a hostname needs IDNA conversion
// before dialing.
func ContainsNonASCII(s string) bool {
	for _, v := range s {
		if v >= utf8.RuneSelf {
			return true
		}
	}
	return false
}
