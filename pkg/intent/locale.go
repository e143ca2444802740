package intent

import "github.com/abadojack/whatlanggo"

// Supported reply locales.
const (
	LocalePT = "pt"
	LocaleEN = "en"
)

var localeOptions = whatlanggo.Options{
	Whitelist: map[whatlanggo.Lang]bool{
		whatlanggo.Por: true,
		whatlanggo.Eng: true,
	},
}

// DetectLocale picks the reply locale for an utterance. Short or ambiguous
// text falls back to Portuguese.
func DetectLocale(text string) string {
	if Normalize(text) == "" {
		return LocalePT
	}
	info := whatlanggo.DetectWithOptions(text, localeOptions)
	if info.Lang == whatlanggo.Eng && info.IsReliable() {
		return LocaleEN
	}
	return LocalePT
}

// ResolveLocale honours an explicit request locale and otherwise detects one.
func ResolveLocale(requested, text string) string {
	switch Normalize(requested) {
	case "pt", "pt br", "pt pt":
		return LocalePT
	case "en", "en us", "en gb":
		return LocaleEN
	}
	return DetectLocale(text)
}
