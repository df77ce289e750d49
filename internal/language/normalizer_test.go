package language

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		detected   string
		candidates []string
		fallback   string
		want       string
	}{
		{"candidate matches detector", "af", []string{"af-ZA", "en-ZA"}, "en-US", "af-ZA"},
		{"match is case insensitive", "AF", []string{"en-ZA", "AF-za"}, "en-US", "af-ZA"},
		{"detector region ignored for match", "en-GB", []string{"af-ZA", "en-ZA"}, "en-US", "en-ZA"},
		{"unmatched guess expands region", "af", []string{"en-ZA"}, "en-US", "af-ZA"},
		{"guess without candidates", "en", nil, "fr-FR", "en-US"},
		{"whisper language name", "afrikaans", []string{"af-ZA"}, "en-US", "af-ZA"},
		{"no guess uses first valid candidate", "", []string{"not a tag!", "zu-ZA"}, "en-US", "zu-ZA"},
		{"unparseable guess treated as absent", "???", []string{"xh-ZA"}, "en-US", "xh-ZA"},
		{"fallback", "", nil, "en-ZA", "en-ZA"},
		{"underscore fallback", "", nil, "en_gb", "en-GB"},
		{"empty fallback", "", nil, "", DefaultLocale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.detected, tt.candidates, tt.fallback); got != tt.want {
				t.Fatalf("Normalize(%q, %v, %q) = %q, want %q", tt.detected, tt.candidates, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	inputs := []struct {
		detected   string
		candidates []string
		fallback   string
	}{
		{"af", []string{"af-ZA", "en-ZA"}, "en-US"},
		{"", []string{"zu-ZA"}, "en-US"},
		{"pt", nil, ""},
		{"english", []string{"en-ZA"}, "en-US"},
	}
	for _, in := range inputs {
		first := Normalize(in.detected, in.candidates, in.fallback)
		for i := 0; i < 50; i++ {
			if got := Normalize(in.detected, in.candidates, in.fallback); got != first {
				t.Fatalf("Normalize(%q, %v, %q) changed from %q to %q", in.detected, in.candidates, in.fallback, first, got)
			}
		}
	}
}

func TestCanonicalize(t *testing.T) {
	tests := map[string]string{
		"en":      "en-US",
		"af":      "af-ZA",
		"zu":      "zu-ZA",
		"pt-br":   "pt-BR",
		" en-ZA ": "en-ZA",
		"Zulu":    "zu-ZA",
	}
	for in, want := range tests {
		got, ok := Canonicalize(in)
		if !ok || got != want {
			t.Errorf("Canonicalize(%q) = (%q, %v), want %q", in, got, ok, want)
		}
	}
	for _, bad := range []string{"", "und", "12"} {
		if got, ok := Canonicalize(bad); ok {
			t.Errorf("Canonicalize(%q) = %q, want failure", bad, got)
		}
	}
}

func TestForProvider(t *testing.T) {
	tests := []struct {
		provider, locale string
		want             Mapping
	}{
		{"openai", "af-ZA", Mapping{Code: "af"}},
		{"local", "en-ZA", Mapping{Code: "en"}},
		{"azure", "af-ZA", Mapping{Code: "af-ZA"}},
		{"google", "xh-ZA", Mapping{Code: "xh-ZA"}},
		{"deepgram", "en-GB", Mapping{Code: "en-GB"}},
		{"deepgram", "en-ZA", Mapping{Code: "en"}},
		{"unknown", "af-ZA", Mapping{Code: "af-ZA"}},
		{"openai", "", Mapping{}},
	}
	for _, tt := range tests {
		if got := ForProvider(tt.provider, tt.locale); got != tt.want {
			t.Errorf("ForProvider(%q, %q) = %+v, want %+v", tt.provider, tt.locale, got, tt.want)
		}
	}
}

func TestForProviderDegradationsAreExplicit(t *testing.T) {
	for _, d := range Degradations {
		m := ForProvider(d.Provider, d.Language+"-ZA")
		if !m.Degraded || m.Code != d.To || m.Note == "" {
			t.Errorf("ForProvider(%q, %q) = %+v, want documented degradation to %q", d.Provider, d.Language+"-ZA", m, d.To)
		}
	}

	if m := ForProvider("deepgram", "af-ZA"); !m.Degraded || m.Code != "en" {
		t.Fatalf("deepgram af-ZA = %+v", m)
	}
}
