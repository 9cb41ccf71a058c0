package content

import "testing"

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"What is RAMS?", "what-is-rams"},
		{"Earth Fault Loop Impedance (Zs)", "earth-fault-loop-impedance-zs"},
		{"  Leading and trailing  ", "leading-and-trailing"},
		{"Café Wiring — Résumé", "cafe-wiring-resume"},
		{"BS 7671:2018+A2", "bs-7671-2018-a2"},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
