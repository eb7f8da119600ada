package service

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const defaultFileStem = "roteiro"

// DownloadFileName builds "<title>_v<n>.pdf". Accents are stripped and every
// other non-alphanumeric rune becomes an underscore.
func DownloadFileName(title string, versionNumber int) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), title)
	if err != nil {
		stripped = title
	}

	var b strings.Builder
	for _, r := range strings.TrimSpace(stripped) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	stem := b.String()
	if strings.Trim(stem, "_") == "" {
		stem = defaultFileStem
	}
	return fmt.Sprintf("%s_v%d.pdf", stem, versionNumber)
}
