package domain

import "testing"

func TestNewIdempotencyKeyCaseInsensitive(t *testing.T) {
	a := NewIdempotencyKey("0xAbC", "KX-MARKET", ContractYes)
	b := NewIdempotencyKey("0xabc", "kx-market", ContractYes)
	if a != b {
		t.Error("key differs across input casing")
	}
	if a == NewIdempotencyKey("0xabc", "kx-market", ContractNo) {
		t.Error("key ignores the contract side")
	}
	if a == NewIdempotencyKey("0xdef", "kx-market", ContractYes) {
		t.Error("key ignores the source trade")
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a))
	}
}

func TestSideOpposite(t *testing.T) {
	if SideFor.Opposite() != SideAgainst || SideAgainst.Opposite() != SideFor {
		t.Error("opposite side mapping wrong")
	}
}

func TestRecordStatusClasses(t *testing.T) {
	cases := []struct {
		status    RecordStatus
		terminal  bool
		committed bool
	}{
		{RecordStatusPending, false, true},
		{RecordStatusFilled, true, true},
		{RecordStatusRejected, true, false},
		{RecordStatusFailed, true, false},
	}
	for _, tc := range cases {
		if got := tc.status.Terminal(); got != tc.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tc.status, got, tc.terminal)
		}
		if got := tc.status.Committed(); got != tc.committed {
			t.Errorf("%s.Committed() = %v, want %v", tc.status, got, tc.committed)
		}
	}
}

func TestSameTrader(t *testing.T) {
	a := "0x1111111111111111111111111111111111111111"
	if !SameTrader(a, "0x1111111111111111111111111111111111111111") {
		t.Error("identical addresses not equal")
	}
	if !SameTrader(a, "0X1111111111111111111111111111111111111111") {
		t.Error("case variant not equal")
	}
	if SameTrader(a, "0x2222222222222222222222222222222222222222") {
		t.Error("different addresses equal")
	}
	if SameTrader(a, "not-an-address") {
		t.Error("invalid address compared equal")
	}
}
