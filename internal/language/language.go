// Package language owns the fixed set of languages lingualink recognises and
// the translation pairs it can serve.
//
// Every language value that leaves the inference layer passes through
// [Coerce], so callers can rely on it being a member of [Supported]. The
// [Service] type splits text into sentences and routes each through the
// translator registered for the requested (source, target) pair; pairs
// without a translator degrade to identity.
package language

import (
	"slices"
	"strings"
)

// Default is the language assumed when detection fails or reports a language
// outside the supported set.
const Default = "en"

// supported maps ISO 639-1 codes to English display names.
var supported = map[string]string{
	"en": "English",
	"ar": "Arabic",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
	"hi": "Hindi",
}

// byName is the reverse index of supported, keyed by lower-cased name.
var byName = func() map[string]string {
	m := make(map[string]string, len(supported))
	for code, name := range supported {
		m[strings.ToLower(name)] = code
	}
	return m
}()

// IsSupported reports whether code is one of the supported language codes.
// The comparison is exact; use [Coerce] to normalise first.
func IsSupported(code string) bool {
	_, ok := supported[code]
	return ok
}

// Name returns the English display name for code, or "" when unsupported.
func Name(code string) string {
	return supported[code]
}

// Supported returns a copy of the code → name table.
func Supported() map[string]string {
	out := make(map[string]string, len(supported))
	for k, v := range supported {
		out[k] = v
	}
	return out
}

// Codes returns the supported codes in sorted order.
func Codes() []string {
	out := make([]string, 0, len(supported))
	for k := range supported {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Coerce maps a backend-reported language onto the supported set. It accepts
// ISO codes in any case, region-tagged codes ("en-US", "pt_BR") and English
// names ("arabic"). Anything else becomes [Default].
func Coerce(lang string) string {
	code, ok := Normalize(lang)
	if !ok {
		return Default
	}
	return code
}

// Normalize is like [Coerce] but reports whether lang was recognised instead
// of substituting the default.
func Normalize(lang string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(lang))
	if s == "" {
		return "", false
	}
	if _, ok := supported[s]; ok {
		return s, true
	}
	if i := strings.IndexAny(s, "-_"); i > 0 {
		if _, ok := supported[s[:i]]; ok {
			return s[:i], true
		}
	}
	if code, ok := byName[s]; ok {
		return code, true
	}
	return "", false
}
