package command

import (
	"errors"
	"strings"
)

// ErrEscapeOverflow is returned when an escaped string does not fit the
// caller's bound.
var ErrEscapeOverflow = errors.New("escaped string exceeds maximum length")

// EscapeJSON escapes newlines, backslashes and double quotes so in can be
// embedded in a JSON string literal. Input ends at the first NUL byte, if
// any. Other control characters are copied unchanged. The result never
// exceeds maxLen bytes; if it would, ErrEscapeOverflow is returned instead
// of a truncated string.
func EscapeJSON(in string, maxLen int) (string, error) {
	if i := strings.IndexByte(in, 0); i >= 0 {
		in = in[:i]
	}
	var b strings.Builder
	b.Grow(min(len(in)+len(in)/8, max(maxLen, 0)))
	for i := 0; i < len(in); i++ {
		c := in[i]
		var esc [2]byte
		n := 1
		switch c {
		case '\n':
			esc, n = [2]byte{'\\', 'n'}, 2
		case '\\', '"':
			esc, n = [2]byte{'\\', c}, 2
		default:
			esc[0] = c
		}
		if b.Len()+n > maxLen {
			return "", ErrEscapeOverflow
		}
		b.Write(esc[:n])
	}
	return b.String(), nil
}
