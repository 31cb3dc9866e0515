package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// StringifyCell renders a raw driver value as the text QueryResult always
// carries. Byte slices that are not valid UTF-8 are converted with
// replacement rather than rejected, so a binary column never breaks a
// result set into an error.
func StringifyCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		return strings.ToValidUTF8(string(val), "�")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
