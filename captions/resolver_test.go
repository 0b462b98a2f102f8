package captions

import (
	"testing"

	"github.com/nijaru/yt-transcript/errors"
)

func TestResolve(t *testing.T) {
	enManual := Track{LanguageCode: "en", Kind: KindManual, SourceURL: "en"}
	frASR := Track{LanguageCode: "fr", Kind: KindGenerated, SourceURL: "fr-asr"}
	ptBR := Track{LanguageCode: "pt-BR", Kind: KindManual, SourceURL: "pt-br"}
	enASR := Track{LanguageCode: "en", Kind: KindGenerated, SourceURL: "en-asr"}

	tests := []struct {
		name      string
		tracks    []Track
		lang      string
		policy    FallbackPolicy
		want      Track
		wantMatch Match
		wantKind  errors.Kind
		wantErr   bool
	}{
		{
			name:      "exact manual",
			tracks:    []Track{frASR, enManual},
			lang:      "en",
			want:      enManual,
			wantMatch: MatchExactManual,
		},
		{
			name:      "exact generated",
			tracks:    []Track{enManual, frASR},
			lang:      "fr",
			want:      frASR,
			wantMatch: MatchExactGenerated,
		},
		{
			name:      "manual preferred over generated",
			tracks:    []Track{enASR, enManual},
			lang:      "en",
			want:      enManual,
			wantMatch: MatchExactManual,
		},
		{
			name:      "base language from regional request",
			tracks:    []Track{enManual, frASR},
			lang:      "fr-CA",
			want:      frASR,
			wantMatch: MatchBaseLanguage,
		},
		{
			name:      "base language of regional track",
			tracks:    []Track{ptBR},
			lang:      "pt",
			want:      ptBR,
			wantMatch: MatchBaseLanguage,
		},
		{
			name:      "any track fallback",
			tracks:    []Track{ptBR, enManual},
			lang:      "es",
			want:      ptBR,
			wantMatch: MatchAnyTrack,
		},
		{
			name:      "empty language falls back to first track",
			tracks:    []Track{frASR, enManual},
			lang:      "",
			want:      frASR,
			wantMatch: MatchAnyTrack,
		},
		{
			name:     "strict policy",
			tracks:   []Track{ptBR},
			lang:     "es",
			policy:   FallbackStrict,
			wantErr:  true,
			wantKind: errors.KindLanguageNotAvailable,
		},
		{
			name:      "strict policy still uses base language",
			tracks:    []Track{ptBR},
			lang:      "pt-PT",
			policy:    FallbackStrict,
			want:      ptBR,
			wantMatch: MatchBaseLanguage,
		},
		{
			name:     "empty catalog",
			lang:     "en",
			wantErr:  true,
			wantKind: errors.KindNoCaptionsAvailable,
		},
		{
			name:     "empty catalog strict",
			lang:     "en",
			policy:   FallbackStrict,
			wantErr:  true,
			wantKind: errors.KindNoCaptionsAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.policy)
			got, match, err := r.ResolveMatch(NewCatalog(tt.tracks), tt.lang)
			if tt.wantErr {
				if !errors.Is(err, tt.wantKind) {
					t.Fatalf("ResolveMatch() error = %v, want kind %v", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveMatch() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v want %+v", got, tt.want)
			}
			if match != tt.wantMatch {
				t.Errorf("match = %v, want %v", match, tt.wantMatch)
			}
		})
	}
}

func TestResolveDistinctCodesExact(t *testing.T) {
	tracks := []Track{
		{LanguageCode: "en-US", Kind: KindManual, SourceURL: "1"},
		{LanguageCode: "en", Kind: KindManual, SourceURL: "2"},
		{LanguageCode: "es-419", Kind: KindManual, SourceURL: "3"},
		{LanguageCode: "es", Kind: KindManual, SourceURL: "4"},
		{LanguageCode: "de", Kind: KindGenerated, SourceURL: "5"},
		{LanguageCode: "ja", Kind: KindManual, SourceURL: "6"},
	}
	catalog := NewCatalog(tracks)

	for _, policy := range []FallbackPolicy{FallbackAnyTrack, FallbackStrict} {
		r := NewResolver(policy)
		for _, want := range tracks {
			got, err := r.Resolve(catalog, want.LanguageCode)
			if err != nil {
				t.Fatalf("%v: Resolve(%q) error: %v", policy, want.LanguageCode, err)
			}
			if got != want {
				t.Errorf("%v: Resolve(%q) = %+v, want %+v", policy, want.LanguageCode, got, want)
			}
		}
	}
}

func TestResolveIgnoresLanguageCase(t *testing.T) {
	gb := Track{LanguageCode: "en-GB", Kind: KindManual, SourceURL: "gb"}
	us := Track{LanguageCode: "en-US", Kind: KindManual, SourceURL: "us"}
	asr := Track{LanguageCode: "pt-br", Kind: KindGenerated, SourceURL: "pt-asr"}
	catalog := NewCatalog([]Track{gb, us, asr})

	tests := []struct {
		lang      string
		want      Track
		wantMatch Match
	}{
		{"en-US", us, MatchExactManual},
		{"en-us", us, MatchExactManual},
		{"EN-US", us, MatchExactManual},
		{"en_us", us, MatchExactManual},
		{"en-gb", gb, MatchExactManual},
		{"pt-BR", asr, MatchExactGenerated},
	}
	r := NewResolver(FallbackStrict)
	for _, tt := range tests {
		got, match, err := r.ResolveMatch(catalog, tt.lang)
		if err != nil {
			t.Fatalf("ResolveMatch(%q) error: %v", tt.lang, err)
		}
		if got != tt.want || match != tt.wantMatch {
			t.Errorf("ResolveMatch(%q) = %s (%v), want %s (%v)", tt.lang, got.SourceURL, match, tt.want.SourceURL, tt.wantMatch)
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	catalog := NewCatalog([]Track{
		{LanguageCode: "ko", Kind: KindManual, SourceURL: "ko"},
		{LanguageCode: "ja", Kind: KindManual, SourceURL: "ja"},
	})
	r := NewResolver(FallbackAnyTrack)
	for i := 0; i < 20; i++ {
		got, err := r.Resolve(catalog, "en")
		if err != nil {
			t.Fatal(err)
		}
		if got.SourceURL != "ko" {
			t.Fatalf("iteration %d: got %s want ko", i, got.SourceURL)
		}
	}
}

func TestNilResolverUsesAnyTrack(t *testing.T) {
	var r *Resolver
	catalog := NewCatalog([]Track{{LanguageCode: "ko", SourceURL: "ko"}})
	got, err := r.Resolve(catalog, "en")
	if err != nil || got.SourceURL != "ko" {
		t.Errorf("Resolve() = %+v, %v", got, err)
	}
}
