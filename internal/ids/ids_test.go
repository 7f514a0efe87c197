package ids

import (
	"strings"
	"testing"
	"time"
)

func TestNewBasketIDAt_IsTimeSortable(t *testing.T) {
	t.Parallel()
	earlier := NewBasketIDAt(time.UnixMilli(1_700_000_000_000))
	later := NewBasketIDAt(time.UnixMilli(1_700_000_001_000))

	if len(earlier) != 12 || len(later) != 12 {
		t.Fatalf("basket id length = %d/%d, want 12", len(earlier), len(later))
	}
	if earlier[:8] >= later[:8] {
		t.Errorf("timestamp prefix not increasing: %q >= %q", earlier[:8], later[:8])
	}
}

func TestNewBasketID_UniqueAcrossCalls(t *testing.T) {
	t.Parallel()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewBasketID()
		if seen[id] {
			t.Fatalf("duplicate basket id %q", id)
		}
		seen[id] = true
	}
}

func TestClientOrderID_BuildsGrammar(t *testing.T) {
	t.Parallel()
	id, err := ClientOrderID("SOLUSDC", "abc123def456", "B", "1")
	if err != nil {
		t.Fatalf("ClientOrderID: %v", err)
	}
	want := "SOLUSDC_abc123def456_B_1"
	if id != want {
		t.Errorf("client order id = %q, want %q", id, want)
	}
}

func TestClientOrderID_RejectsOver36Chars(t *testing.T) {
	t.Parallel()
	_, err := ClientOrderID("SOLUSDC", strings.Repeat("x", 22), "S", "EMERGENCY")
	if err == nil {
		t.Error("expected error for client order id exceeding 36 chars")
	}
}
