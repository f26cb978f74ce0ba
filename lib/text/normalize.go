package text

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds a token for approximate comparison: NFKC form, lower case.
func Normalize(token string) string {
	return strings.ToLower(norm.NFKC.String(token))
}
