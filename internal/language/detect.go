// Package language tells Arabic, English and mixed requirement text apart.
package language

import "unicode"

type Code string

const (
	Arabic  Code = "ar"
	English Code = "en"
	Mixed   Code = "mixed"
)

// Detect classifies text by the presence of Arabic-script and Latin letters.
// Text with neither (digits, punctuation, empty) is English.
func Detect(text string) Code {
	var hasArabic, hasLatin bool
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Arabic, r):
			hasArabic = true
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			hasLatin = true
		}
		if hasArabic && hasLatin {
			return Mixed
		}
	}
	if hasArabic {
		return Arabic
	}
	return English
}
