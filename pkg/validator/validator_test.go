package validator

import "testing"

func TestValidatePrompt(t *testing.T) {
	v := New(nil)

	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"too short", "tiny", false},
		{"empty", "   ", false},
		{"valid prompt", "a peaceful mountain sunrise with soft golden light", true},
		{"contains blocked term", "a scene full of violence and blood", false},
		{"blocked term is case insensitive", "VIOLENCE everywhere in this landscape", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := v.ValidatePrompt(tt.input)
			if r.Valid != tt.valid {
				t.Errorf("ValidatePrompt(%q).Valid = %v, want %v (errors=%v)", tt.input, r.Valid, tt.valid, r.Errors)
			}
		})
	}
}

func TestSanitizePrompt(t *testing.T) {
	v := New(nil)

	got := v.SanitizePrompt("a quiet scene with violence and blood removed")
	want := "a quiet scene with and removed"
	if got != want {
		t.Errorf("SanitizePrompt() = %q, want %q", got, want)
	}
}

func TestSanitizePromptIdempotent(t *testing.T) {
	v := New(nil)
	once := v.SanitizePrompt("violence in the valley of gore")
	twice := v.SanitizePrompt(once)
	if once != twice {
		t.Errorf("SanitizePrompt is not idempotent: %q != %q", once, twice)
	}
}

func TestValidateVerseReference(t *testing.T) {
	v := New(nil)

	tests := []struct {
		name  string
		ref   string
		valid bool
	}{
		{"simple reference", "John 3:16", true},
		{"numbered book", "1 Corinthians 13:4", true},
		{"range reference", "Psalm 23:1-3", true},
		{"empty", "", false},
		{"missing chapter verse", "John", false},
		{"invalid range ordering", "Psalm 23:5-3", false},
		{"zero chapter", "John 0:16", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := v.ValidateVerseReference(tt.ref)
			if r.Valid != tt.valid {
				t.Errorf("ValidateVerseReference(%q).Valid = %v, want %v (errors=%v)", tt.ref, r.Valid, tt.valid, r.Errors)
			}
		})
	}
}

func TestParseVerseReference(t *testing.T) {
	ref, err := ParseVerseReference("1 Corinthians 13:4-7")
	if err != nil {
		t.Fatalf("ParseVerseReference returned error: %v", err)
	}
	if ref.Book != "1 Corinthians" || ref.Chapter != 13 || ref.Verse != 4 || ref.EndVerse != 7 {
		t.Errorf("ParseVerseReference = %+v, unexpected", ref)
	}
}

func TestValidateStylePreset(t *testing.T) {
	v := New(nil)

	if r := v.ValidateStylePreset(""); !r.Valid {
		t.Error("empty style preset should be valid (defaulted by caller)")
	}
	if r := v.ValidateStylePreset("modern"); !r.Valid {
		t.Error("modern should be a valid style preset")
	}
	if r := v.ValidateStylePreset("cyberpunk"); r.Valid {
		t.Error("cyberpunk is not a known style preset")
	}
}

func TestAddRemoveBlockedTerm(t *testing.T) {
	v := New(nil)

	if r := v.ValidatePrompt("a lovely and peaceful countryside morning"); !r.Valid {
		t.Fatalf("expected valid prompt before blocking, got errors=%v", r.Errors)
	}

	v.AddBlockedTerm("countryside")
	if r := v.ValidatePrompt("a lovely and peaceful countryside morning"); r.Valid {
		t.Error("expected prompt to be invalid after blocking 'countryside'")
	}

	v.RemoveBlockedTerm("countryside")
	if r := v.ValidatePrompt("a lovely and peaceful countryside morning"); !r.Valid {
		t.Errorf("expected prompt valid again after unblocking, got errors=%v", r.Errors)
	}
}

func TestValidateGenerationRequest(t *testing.T) {
	v := New(nil)

	valid := GenerationRequest{
		VerseReference: "John 3:16",
		StylePreset:    "classic",
		CustomPrompt:   "soft warm light over a quiet hillside",
	}
	if r := v.ValidateGenerationRequest(valid); !r.Valid {
		t.Errorf("expected valid generation request, got errors=%v", r.Errors)
	}

	invalid := GenerationRequest{
		VerseReference: "not a reference",
		StylePreset:    "unknown-preset",
	}
	if r := v.ValidateGenerationRequest(invalid); r.Valid {
		t.Error("expected invalid generation request")
	} else if len(r.Errors) != 2 {
		t.Errorf("expected 2 accumulated errors, got %d: %v", len(r.Errors), r.Errors)
	}
}
