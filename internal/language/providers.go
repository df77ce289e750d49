package language

import "strings"

// Mapping is a canonical locale translated into one provider's vocabulary.
type Mapping struct {
	Code     string // value sent to the provider; "" lets it auto-detect
	Degraded bool   // true when Code approximates an unsupported language
	Note     string
}

// Degradation documents one unsupported language and the code used instead.
type Degradation struct {
	Provider string
	Language string // base language subtag
	To       string
	Note     string
}

// Degradations lists every explicit substitution ForProvider makes. Anything
// not listed is passed through in the provider's code style.
var Degradations = []Degradation{
	{"openai", "zu", "en", "Whisper has no isiZulu model; South African English is the usual code-switch"},
	{"openai", "xh", "en", "Whisper has no isiXhosa model"},
	{"openai", "st", "en", "Whisper has no Sesotho model"},
	{"openai", "tn", "en", "Whisper has no Setswana model"},
	{"local", "zu", "en", "whisper.cpp models share the Whisper language set"},
	{"local", "xh", "en", "whisper.cpp models share the Whisper language set"},
	{"local", "st", "en", "whisper.cpp models share the Whisper language set"},
	{"local", "tn", "en", "whisper.cpp models share the Whisper language set"},
	{"deepgram", "af", "en", "Deepgram has no Afrikaans model"},
	{"deepgram", "zu", "en", "Deepgram has no isiZulu model"},
	{"deepgram", "xh", "en", "Deepgram has no isiXhosa model"},
	{"deepgram", "st", "en", "Deepgram has no Sesotho model"},
	{"deepgram", "tn", "en", "Deepgram has no Setswana model"},
	{"azure", "xh", "en-ZA", "Azure speech has no isiXhosa locale"},
	{"azure", "st", "en-ZA", "Azure speech has no Sesotho locale"},
	{"azure", "tn", "en-ZA", "Azure speech has no Setswana locale"},
}

type codeStyle int

const (
	styleLocale codeStyle = iota // xx-YY
	styleBase                    // xx
)

var providerStyles = map[string]codeStyle{
	"openai":   styleBase,
	"local":    styleBase,
	"deepgram": styleLocale,
	"azure":    styleLocale,
	"google":   styleLocale,
}

// deepgramLocales are the regional English models Deepgram accepts. Other
// English regions collapse to plain "en".
var deepgramLocales = map[string]bool{
	"en-US": true, "en-GB": true, "en-AU": true, "en-IN": true, "en-NZ": true,
	"es-419": true, "pt-BR": true, "pt-PT": true, "fr-CA": true, "zh-CN": true, "zh-TW": true,
}

var degradationIndex = func() map[string]Degradation {
	m := make(map[string]Degradation, len(Degradations))
	for _, d := range Degradations {
		m[d.Provider+"/"+d.Language] = d
	}
	return m
}()

// ForProvider translates a canonical locale into the code a provider expects.
// Unknown providers receive the canonical locale unchanged.
func ForProvider(provider, canonical string) Mapping {
	if canonical == "" {
		return Mapping{}
	}
	base := Base(canonical)
	if d, ok := degradationIndex[provider+"/"+base]; ok {
		return Mapping{Code: d.To, Degraded: true, Note: d.Note}
	}

	style, ok := providerStyles[provider]
	if !ok {
		return Mapping{Code: canonical}
	}
	switch {
	case style == styleBase:
		return Mapping{Code: base}
	case provider == "deepgram" && !deepgramLocales[canonical]:
		return Mapping{Code: base}
	}
	return Mapping{Code: canonical}
}

// whisperNames maps the English language names Whisper reports in
// verbose_json responses back to ISO-639-1 codes.
var whisperNames = map[string]string{
	"afrikaans":  "af",
	"arabic":     "ar",
	"chinese":    "zh",
	"dutch":      "nl",
	"english":    "en",
	"french":     "fr",
	"german":     "de",
	"hindi":      "hi",
	"italian":    "it",
	"japanese":   "ja",
	"korean":     "ko",
	"portuguese": "pt",
	"russian":    "ru",
	"shona":      "sn",
	"spanish":    "es",
	"swahili":    "sw",
	"turkish":    "tr",
	"yoruba":     "yo",
	"zulu":       "zu",
}

// CodeForName resolves an English language name to its ISO-639-1 code.
func CodeForName(name string) (string, bool) {
	code, ok := whisperNames[strings.ToLower(strings.TrimSpace(name))]
	return code, ok
}
