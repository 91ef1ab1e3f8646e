package enc28j60

import "testing"

func TestRegisterEncoding(t *testing.T) {
	tests := []struct {
		reg    Register
		addr   uint8
		bank   Bank
		macmii bool
	}{
		{reg: ECON1, addr: 0x1f, bank: BankAny},
		{reg: EIR, addr: 0x1c, bank: BankAny},
		{reg: ERDPTL, addr: 0x00, bank: Bank0},
		{reg: ERXNDH, addr: 0x0b, bank: Bank0},
		{reg: ERXFCON, addr: 0x18, bank: Bank1},
		{reg: EPKTCNT, addr: 0x19, bank: Bank1},
		{reg: MACON1, addr: 0x00, bank: Bank2, macmii: true},
		{reg: MIRDH, addr: 0x19, bank: Bank2, macmii: true},
		{reg: MAADR1, addr: 0x04, bank: Bank3, macmii: true},
		{reg: MISTAT, addr: 0x0a, bank: Bank3, macmii: true},
		{reg: EREVID, addr: 0x12, bank: Bank3},
	}
	for _, tc := range tests {
		if tc.reg.Addr() != tc.addr {
			t.Errorf("%s: addr want %#x, got %#x", tc.reg, tc.addr, tc.reg.Addr())
		}
		if tc.reg.Bank() != tc.bank {
			t.Errorf("%s: bank want %s, got %s", tc.reg, tc.bank, tc.reg.Bank())
		}
		if tc.reg.IsMACMII() != tc.macmii {
			t.Errorf("%s: MAC/MII want %v", tc.reg, tc.macmii)
		}
	}
}

func TestRegisterLookup(t *testing.T) {
	for _, rn := range registerNames {
		got, ok := LookupRegister(rn.name)
		if !ok || got != rn.r {
			t.Errorf("lookup %s: got %s ok=%v", rn.name, got, ok)
		}
		got, ok = RegisterAt(rn.r.Bank(), rn.r.Addr())
		if !ok || got != rn.r {
			t.Errorf("RegisterAt(%s, %#x): got %s ok=%v", rn.r.Bank(), rn.r.Addr(), got, ok)
		}
	}
	if _, ok := LookupRegister("ECON3"); ok {
		t.Error("found nonexistent register")
	}
}

func TestOpcodes(t *testing.T) {
	tests := []struct {
		b   byte
		op  Op
		arg uint8
	}{
		{opRCR | ECON1.Addr(), OpRCR, 0x1f},
		{opWCR | ERXSTL.Addr(), OpWCR, 0x08},
		{opBFS | 0x1e, OpBFS, 0x1e},
		{opBFC | 0x1c, OpBFC, 0x1c},
		{0x3a, OpRBM, 0x1a},
		{0x7a, OpWBM, 0x1a},
		{0xff, OpSRC, 0x1f},
	}
	for _, tc := range tests {
		op, arg := DecodeOp(tc.b)
		if op != tc.op || arg != tc.arg {
			t.Errorf("decode %#x: want %s %#x, got %s %#x", tc.b, tc.op, tc.arg, op, arg)
		}
	}
	if opRBM != 0x3a || opWBM != 0x7a || opWCR != 0x40 || opBFS != 0x80 || opBFC != 0xa0 {
		t.Error("bad opcode constants")
	}
}

func TestMemoryMap(t *testing.T) {
	if TxStart != 0x19ff {
		t.Errorf("TxStart=%#x", TxStart)
	}
	if RxEnd != TxStart-1 || RxStart != 0 {
		t.Errorf("rx region [%#x, %#x]", RxStart, RxEnd)
	}
	// Transmit slot must fit control byte, largest frame and status vector.
	if int(TxStart)+1+MaxTxFrame+txStatusLen > bufferSize {
		t.Error("transmit slot too small")
	}
}

func TestStatusVectors(t *testing.T) {
	hdr := decodeRxHeader([]byte{0x46, 0x00, 64, 0, 0x80, 0x02})
	if hdr.next != 0x46 || hdr.status.ByteCount() != 64 || !hdr.status.ReceivedOK() || !hdr.status.Broadcast() {
		t.Errorf("bad rx header decode %+v", hdr)
	}
	tsv := decodeTxStatus([]byte{60, 0, 0x83, 0x00, 60, 0, 0})
	if tsv.ByteCount() != 60 || tsv.CollisionCount() != 3 || !tsv.Done() || tsv.WireBytes() != 60 {
		t.Errorf("bad tx status decode %#x", uint64(tsv))
	}
}
