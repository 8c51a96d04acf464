package address

import "testing"

func TestMatchHistory(t *testing.T) {
	history := []string{"52A David Road, Coventry", "14 Station Street", "Coventry Railway Station"}

	tests := []struct {
		name        string
		spoken      string
		kind        MatchKind
		known       string
		significant bool
	}{
		{"exact ignoring case and punctuation", "52a david road coventry", MatchExact, "52A David Road, Coventry", false},
		{"abbreviation expands", "14 Station St", MatchExact, "14 Station Street", false},
		{"same house and street", "52A David Road", MatchCore, "52A David Road, Coventry", false},
		{"spoken within known", "railway station", MatchSubstring, "Coventry Railway Station", false},
		{"letter dropped", "52 David Road", MatchFuzzyHouseNumber, "52A David Road, Coventry", false},
		{"letter heard as digits", "5208 David Road", MatchFuzzyHouseNumber, "52A David Road, Coventry", true},
		{"letter heard as one digit", "528 David Road", MatchFuzzyHouseNumber, "52A David Road, Coventry", true},
		{"different letter", "52B David Road", MatchFuzzyHouseNumber, "52A David Road, Coventry", true},
		{"different street", "52A Dover Road", MatchNone, "", false},
		{"different number", "61 David Road", MatchNone, "", false},
		{"number embedded in a longer one", "2 David Road", MatchNone, "", false},
		{"empty", "", MatchNone, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MatchHistory(tt.spoken, history)
			if m.Kind != tt.kind {
				t.Fatalf("kind = %v, want %v", m.Kind, tt.kind)
			}
			if m.Known != tt.known {
				t.Errorf("known = %q, want %q", m.Known, tt.known)
			}
			if m.Significant != tt.significant {
				t.Errorf("significant = %v, want %v", m.Significant, tt.significant)
			}
		})
	}
}

func TestSignificantFuzzyMatchIsNeverTrusted(t *testing.T) {
	m := MatchHistory("5208 David Road", []string{"52A David Road"})
	if m.Trusted() {
		t.Fatal("significant fuzzy match must not verify on its own")
	}
	if !m.NeedsClarification() {
		t.Fatal("significant fuzzy match should ask the caller")
	}

	m = MatchHistory("52 David Road", []string{"52A David Road"})
	if !m.Trusted() {
		t.Fatal("dropped letter should verify")
	}
}

func TestFuzzyPrefersInsignificant(t *testing.T) {
	// "58" reads as "5A" misheard, or as "58A" with the letter dropped.
	m := MatchHistory("58 David Road", []string{"5A David Road", "58A David Road"})
	if m.Kind != MatchFuzzyHouseNumber || m.Significant || m.Known != "58A David Road" {
		t.Fatalf("got %+v", m)
	}
}

func TestSeparateHouseLetter(t *testing.T) {
	if got := HouseNumber("52 a David Road"); got != "52a" {
		t.Fatalf("HouseNumber = %q", got)
	}
	if got := HouseNumber("Café Rouge"); got != "" {
		t.Fatalf("HouseNumber = %q", got)
	}
	if Normalize("Café Rouge") != "cafe rouge" {
		t.Fatalf("Normalize did not fold accents: %q", Normalize("Café Rouge"))
	}
}

func TestIsSafeCorrection(t *testing.T) {
	tests := []struct {
		original  string
		corrected string
		want      bool
	}{
		{"52A Davd Road", "52A David Road", false},
		{"52A David Rd", "52A David Road, Coventry", true},
		{"the Ricoh arena", "Coventry Building Society Arena (Ricoh)", true},
		{"52A David Road", "53 David Road", false},
		{"David Road", "14 David Road", true},
		{"Queens Road", "Kings Road", false},
		{"12 the road", "12 High Road", false},
		{"station", "", false},
	}
	for _, tt := range tests {
		if got := IsSafeCorrection(tt.original, tt.corrected); got != tt.want {
			t.Errorf("IsSafeCorrection(%q, %q) = %v, want %v", tt.original, tt.corrected, got, tt.want)
		}
	}
}

func TestContainsPhrase(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"railway station", "coventry railway station", true},
		{"coventry railway station", "railway station", true},
		{"way station", "coventry railway station", false},
		{"station", "coventry railway station", false},
		{"railway stations", "coventry railway station", false},
	}
	for _, tt := range tests {
		if got := containsPhrase(tt.a, tt.b); got != tt.want {
			t.Errorf("containsPhrase(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
