package entitlements

import "testing"

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
		ok   bool
	}{
		{in: "ember", want: TierEmber, ok: true},
		{in: "Flamewalker", want: TierFlamewalker, ok: true},
		{in: " harmonizer ", want: TierHarmonizer, ok: true},
		{in: "ARCHITECT", want: TierArchitect, ok: true},
		{in: "", want: TierEmber, ok: false},
		{in: "premium", want: TierEmber, ok: false},
	}

	for _, tt := range tests {
		got, ok := ParseTier(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseTier(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRank(t *testing.T) {
	order := []Tier{TierEmber, TierFlamewalker, TierHarmonizer, TierArchitect}
	for i := 1; i < len(order); i++ {
		if Rank(order[i-1]) >= Rank(order[i]) {
			t.Fatalf("expected %s to outrank %s", order[i], order[i-1])
		}
	}
	if TierEmber.IsPaid() || !TierFlamewalker.IsPaid() {
		t.Fatalf("only non-default tiers are paid")
	}
	if Rank("bogus") != Rank(TierEmber) {
		t.Fatalf("unknown tiers rank as the default tier")
	}
}

func TestContentID(t *testing.T) {
	tests := map[string]string{
		"scroll_007-D":         "007-D",
		"Scroll_019-V":         "019-V",
		"contentunlock:003-A":  "003-A",
		"content_unlock:021-X": "021-X",
		" 010-B ":              "010-B",
		"codex_bundle":         "codex_bundle",
	}
	for in, want := range tests {
		if got := ContentID(in); got != want {
			t.Fatalf("ContentID(%q) = %q, want %q", in, got, want)
		}
	}
}
