package main

import (
	"testing"

	"github.com/soypat/enc28j60"
	"github.com/soypat/saleae/analyzers"
)

func TestDecodeFiltering(t *testing.T) {
	txs := []analyzers.TxSPI{
		{SDO: []byte{0xff}, SDI: []byte{0x00}},                     // SRC.
		{SDO: []byte{0x1d, 0x00}, SDI: []byte{0x00, 0x01}},         // RCR ESTAT.
		{SDO: []byte{0x1d, 0x00}, SDI: []byte{0x00, 0x01}},         // RCR ESTAT.
		{SDO: []byte{0x3a, 0x00, 0x00}, SDI: []byte{0, 0xaa, 0xbb}}, // RBM.
		{SDO: []byte{0x5f, 0x02}, SDI: []byte{0x00, 0x00}},         // WCR ECON1.
	}
	bus := BusCtl{MaxData: -1, Compact: true}
	recs, nerr := bus.decode(txs)
	if nerr != 0 {
		t.Fatal("unexpected decode errors", nerr)
	}
	if len(recs) != 4 || recs[1].Repeat != 2 {
		t.Fatalf("bad compaction: %v", recs)
	}
	if recs[1].Reg != enc28j60.ESTAT || recs[1].Value != 0x01 {
		t.Error("bad ESTAT decode", recs[1])
	}

	bus = BusCtl{OmitRead: true}
	recs, _ = bus.decode(txs)
	for _, rec := range recs {
		if rec.Op == enc28j60.OpRCR || rec.Op == enc28j60.OpRBM {
			t.Error("read not omitted", rec)
		}
	}

	bus = BusCtl{OmitReadData: true, OmitOps: []enc28j60.Op{enc28j60.OpSRC}}
	recs, _ = bus.decode(txs)
	if len(recs) != 4 {
		t.Fatalf("want 4 records, got %d", len(recs))
	}
	if recs[2].Op != enc28j60.OpRBM || len(recs[2].Data) != 0 {
		t.Error("read data not omitted", recs[2])
	}
}
