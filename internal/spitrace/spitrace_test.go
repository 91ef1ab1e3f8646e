package spitrace

import (
	"strings"
	"testing"

	"github.com/soypat/enc28j60"
	"github.com/soypat/enc28j60/internal/encsim"
)

func TestDecodeBankTracking(t *testing.T) {
	var d Decoder
	// Banked register before any bank is known.
	rec, err := d.Decode([]byte{0x40 | 0x08, 0x00}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.RegKnown {
		t.Error("bank should be unknown before ECON1 is seen")
	}
	// Select bank 2 through ECON1 then read MACON1 which needs a dummy byte.
	_, err = d.Decode([]byte{0x40 | 0x1f, 0x02}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Bank() != enc28j60.Bank2 {
		t.Fatal("want bank 2, got", d.Bank())
	}
	rec, err = d.Decode([]byte{0x00, 0, 0}, []byte{0xff, 0xaa, 0x0d})
	if err != nil {
		t.Fatal(err)
	}
	if !rec.RegKnown || rec.Reg != enc28j60.MACON1 || rec.Value != 0x0d {
		t.Errorf("bad MACON1 read decode: %s", rec)
	}
	// BFC of BSEL1 moves to bank 0.
	d.Decode([]byte{0xa0 | 0x1f, 0x02}, nil)
	if d.Bank() != enc28j60.Bank0 {
		t.Error("want bank 0 after BFC, got", d.Bank())
	}
	rec, _ = d.Decode([]byte{0x40 | 0x08, 0x00}, nil)
	if rec.Reg != enc28j60.ERXSTL || rec.String() != "WCR ERXSTL <- 0x00" {
		t.Errorf("got %q", rec.String())
	}
}

func TestDecodeErrors(t *testing.T) {
	var d Decoder
	if _, err := d.Decode(nil, nil); err == nil {
		t.Error("expected error on empty transaction")
	}
	if _, err := d.Decode([]byte{0x40}, nil); err == nil {
		t.Error("expected error on truncated WCR")
	}
	if _, err := d.Decode([]byte{0x3a, 0, 0}, []byte{0}); err == nil {
		t.Error("expected error on short MISO")
	}
}

func TestDecodeDeviceSession(t *testing.T) {
	chip := encsim.New()
	dev := enc28j60.New(chip, chip.CS)
	cfg := enc28j60.DefaultConfig([6]byte{0x02, 0, 0, 0, 0, 1})
	cfg.ClockPollInterval = 0
	err := dev.Init(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var d Decoder
	var recs []Record
	for _, tx := range chip.Log() {
		rec, err := d.Decode(tx.MOSI, tx.MISO)
		if err != nil {
			t.Fatal(err)
		}
		recs = append(recs, rec)
	}
	var sawRev, sawMaxLen bool
	for _, rec := range recs {
		if !rec.RegKnown && rec.Op != enc28j60.OpRBM && rec.Op != enc28j60.OpWBM && rec.Op != enc28j60.OpSRC {
			t.Errorf("unresolved register after reset: %s", rec)
		}
		switch {
		case rec.Op == enc28j60.OpRCR && rec.Reg == enc28j60.EREVID:
			sawRev = rec.Value == encsim.RevID
		case rec.Op == enc28j60.OpWCR && rec.Reg == enc28j60.MAMXFLL:
			sawMaxLen = rec.Value == enc28j60.MaxFrameLength&0xff
		}
	}
	if !sawRev {
		t.Error("revision read not decoded")
	}
	if !sawMaxLen {
		t.Error("max frame length write not decoded")
	}
	if d.Bank() != chip.Bank() {
		t.Errorf("decoder bank %s, chip bank %s", d.Bank(), chip.Bank())
	}
}

func TestCompact(t *testing.T) {
	recs := []Record{
		{Op: enc28j60.OpRCR, Reg: enc28j60.ESTAT, RegKnown: true, Repeat: 1},
		{Op: enc28j60.OpRCR, Reg: enc28j60.ESTAT, RegKnown: true, Repeat: 1},
		{Op: enc28j60.OpRCR, Reg: enc28j60.ESTAT, RegKnown: true, Value: 1, Repeat: 1},
		{Op: enc28j60.OpRBM, Data: []byte{1, 2}, Repeat: 1},
	}
	got := Compact(recs)
	if len(got) != 3 || got[0].Repeat != 2 {
		t.Fatalf("bad compaction %v", got)
	}
	if s := got[0].String(); !strings.HasPrefix(s, "x2 RCR ESTAT") {
		t.Errorf("got %q", s)
	}
	if s := got[2].String(); s != "RBM [2] 0102" {
		t.Errorf("got %q", s)
	}
}
