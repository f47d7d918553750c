package vmm

import "testing"

func TestEarlyReserveRegion(t *testing.T) {
	defer func(orig uintptr) { earlyReserveLastUsed = orig }(earlyReserveLastUsed)

	earlyReserveLastUsed = 4096
	next, err := EarlyReserveRegion(42)
	if err != nil {
		t.Fatalf("EarlyReserveRegion: %v", err)
	}
	if next != 0 {
		t.Fatalf("expected the request to be rounded up to a full page, got 0x%x", next)
	}

	if _, err := EarlyReserveRegion(1); err != errEarlyReserveNoSpace {
		t.Fatalf("expected errEarlyReserveNoSpace, got %v", err)
	}
}
