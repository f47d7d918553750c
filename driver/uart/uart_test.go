package uart

import "testing"

// fakePortSpace installs outbFn/inbFn over a small in-memory register file
// indexed by port offset from basePort, so Init/WriteByte can be exercised
// without real I/O port access.
func fakePortSpace(t *testing.T) (regs map[uint16]uint8) {
	t.Helper()
	regs = make(map[uint16]uint8)
	oldOutb, oldInb := outbFn, inbFn
	outbFn = func(port uint16, value uint8) { regs[port] = value }
	inbFn = func(port uint16) uint8 { return regs[port] }
	t.Cleanup(func() { outbFn, inbFn = oldOutb, oldInb })
	return regs
}

func TestInitProgramsLineControlFor8N1(t *testing.T) {
	regs := fakePortSpace(t)
	COM1.Init()

	if got := regs[basePort+regLineCtrl]; got != lineCtrl8N1 {
		t.Fatalf("line control = %#x, want %#x (DLAB cleared after divisor load)", got, lineCtrl8N1)
	}
	wantDivisor := uint16(baseClock / baudRate)
	gotDivisor := uint16(regs[basePort+regDivisorLow]) | uint16(regs[basePort+regDivisorHigh])<<8
	if gotDivisor != wantDivisor {
		t.Fatalf("divisor = %d, want %d", gotDivisor, wantDivisor)
	}
}

func TestWriteByteWaitsForTxIdleThenWrites(t *testing.T) {
	regs := fakePortSpace(t)
	regs[basePort+regLineStatus] = lineStatusTxIdle

	if err := COM1.WriteByte('A'); err != nil {
		t.Fatalf("WriteByte: %v", err)
	}
	if got := regs[basePort+regData]; got != 'A' {
		t.Fatalf("data register = %q, want 'A'", got)
	}
}

func TestWriteTranslatesNewlineToCRLF(t *testing.T) {
	regs := fakePortSpace(t)
	regs[basePort+regLineStatus] = lineStatusTxIdle

	var sent []byte
	oldOutb := outbFn
	outbFn = func(port uint16, value uint8) {
		regs[port] = value
		if port == basePort+regData {
			sent = append(sent, value)
		}
	}
	defer func() { outbFn = oldOutb }()

	n, err := COM1.Write([]byte("hi\n"))
	if err != nil || n != 3 {
		t.Fatalf("Write = (%d, %v), want (3, nil)", n, err)
	}
	want := "hi\r\n"
	if string(sent) != want {
		t.Fatalf("bytes sent = %q, want %q", sent, want)
	}
}
