package conditions

import "testing"

func TestDescribe(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "Ciel dégagé"},
		{1, "Principalement dégagé"},
		{2, "Partiellement nuageux"},
		{3, "Couvert"},
		{45, "Brouillard"},
		{48, "Brouillard givrant"},
		{51, "Bruine légère"},
		{53, "Bruine modérée"},
		{55, "Bruine dense"},
		{61, "Pluie légère"},
		{63, "Pluie modérée"},
		{65, "Pluie forte"},
		{71, "Neige légère"},
		{73, "Neige modérée"},
		{75, "Neige forte"},
		{80, "Averses légères"},
		{81, "Averses modérées"},
		{82, "Averses violentes"},
		{95, "Orage"},
		{96, "Orage avec grêle"},
	}
	for _, tt := range tests {
		if got := Describe(tt.code); got != tt.want {
			t.Errorf("Describe(%d) = %q, want %q", tt.code, got, tt.want)
		}
		if !Known(tt.code) {
			t.Errorf("Known(%d) = false, want true", tt.code)
		}
	}
}

// TestDescribe_UnmappedCodes verifies codes outside the table degrade to Unknown
// rather than an empty string. 99 is a real provider code the table does not carry.
func TestDescribe_UnmappedCodes(t *testing.T) {
	for _, code := range []int{-1, 4, 56, 77, 99, 999} {
		got := Describe(code)
		if got != "Conditions inconnues" {
			t.Errorf("Describe(%d) = %q, want %q", code, got, "Conditions inconnues")
		}
		if Known(code) {
			t.Errorf("Known(%d) = true, want false", code)
		}
	}
}

func TestDescribe_NeverEmpty(t *testing.T) {
	for code := -5; code < 200; code++ {
		if Describe(code) == "" {
			t.Fatalf("Describe(%d) returned empty string", code)
		}
	}
}
