package mapping

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// CodeLength is the number of base64 characters kept from the URL digest.
const CodeLength = 6

var codeCleaner = strings.NewReplacer("+", "", "/", "", "=", "")

// GenerateCode derives the short code of a long URL.
//
// The SHA-256 digest of the URL is base64 encoded and truncated to
// CodeLength characters before '+', '/' and '=' are removed, so the result
// can be shorter than CodeLength. Existing short links depend on this
// order and it must not be swapped.
func GenerateCode(longURL string) ShortCode {
	sum := sha256.Sum256([]byte(longURL))
	encoded := base64.StdEncoding.EncodeToString(sum[:])

	return ShortCode(codeCleaner.Replace(encoded[:CodeLength]))
}
