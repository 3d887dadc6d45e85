package policy

import "testing"

func TestQuotaDecide(t *testing.T) {
	q := NewQuota(DefaultFreeLimit, []string{" 42 ", ""})
	cases := []struct {
		user      string
		used      int
		allowed   bool
		remaining int
	}{
		{"7", 0, true, 8},
		{"7", 7, true, 1},
		{"7", 8, false, 0},
		{"7", 12, false, 0},
	}
	for _, tc := range cases {
		got := q.Decide(tc.user, tc.used)
		if got.Allowed != tc.allowed || got.Remaining != tc.remaining {
			t.Fatalf("Decide(%q, %d) = %+v, want allowed=%v remaining=%d", tc.user, tc.used, got, tc.allowed, tc.remaining)
		}
	}
}

func TestQuotaWhitelistIsUnlimited(t *testing.T) {
	q := NewQuota(DefaultFreeLimit, []string{" 42 "})
	got := q.Decide("42", 500)
	if !got.Allowed || !got.Unlimited {
		t.Fatalf("Decide(whitelisted) = %+v, want unlimited", got)
	}
	if q.Exempt("43") {
		t.Fatalf("Exempt(43) = true, want false")
	}
}

func TestQuotaZeroLimitDisables(t *testing.T) {
	q := NewQuota(0, nil)
	if got := q.Decide("anyone", 1000); !got.Allowed || !got.Unlimited {
		t.Fatalf("Decide() = %+v, want quota disabled", got)
	}
}
