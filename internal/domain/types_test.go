package domain

import "testing"

func TestNormalizeDiscountCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "spring10", want: "SPRING10"},
		{in: "  Spring10  ", want: "SPRING10"},
		{in: "SPRING10", want: "SPRING10"},
		{in: "   ", want: ""},
	}
	for _, tc := range cases {
		if got := NormalizeDiscountCode(tc.in); got != tc.want {
			t.Errorf("NormalizeDiscountCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDiscountRemainingUses(t *testing.T) {
	maxUses := 10

	uncapped := Discount{UsesCount: 5}
	if got := uncapped.RemainingUses(); got != -1 {
		t.Errorf("uncapped discount: got %d, want -1", got)
	}

	capped := Discount{MaxUses: &maxUses, UsesCount: 7}
	if got := capped.RemainingUses(); got != 3 {
		t.Errorf("capped discount: got %d, want 3", got)
	}

	overdrawn := Discount{MaxUses: &maxUses, UsesCount: 12}
	if got := overdrawn.RemainingUses(); got != 0 {
		t.Errorf("overdrawn discount: got %d, want 0", got)
	}
}

func TestDiscountUserUsageCount(t *testing.T) {
	d := Discount{UsersUsed: []string{"user-1", "user-2", "user-1"}}

	if got := d.UserUsageCount("user-1"); got != 2 {
		t.Errorf("user-1 usage: got %d, want 2", got)
	}
	if got := d.UserUsageCount("user-3"); got != 0 {
		t.Errorf("user-3 usage: got %d, want 0", got)
	}
}
