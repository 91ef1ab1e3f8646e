// Package spitrace decodes captured ENC28J60 SPI transactions into register
// and buffer operations, resolving register names by tracking the selected bank.
package spitrace

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/soypat/enc28j60"
)

// Record is a single decoded chip-select bracketed transaction.
type Record struct {
	Op enc28j60.Op
	// Reg is the addressed register for RCR, WCR, BFS and BFC.
	Reg enc28j60.Register
	// RegKnown is false when the bank of a banked register could not be
	// determined from the preceding transactions.
	RegKnown bool
	// Value is the value read (RCR), written (WCR) or the mask (BFS, BFC).
	Value uint8
	// Data holds the buffer bytes of RBM and WBM.
	Data []byte
	// Repeat is the number of consecutive identical transactions this record stands for.
	Repeat int
	// Start is the capture time of the transaction in seconds, if known.
	Start float64
}

var (
	errEmpty     = errors.New("spitrace: empty transaction")
	errShort     = errors.New("spitrace: transaction too short for opcode")
	errBadLength = errors.New("spitrace: MISO shorter than MOSI")
)

// Decoder tracks ECON1.BSEL across transactions. The zero value starts with
// an unknown bank.
type Decoder struct {
	bank  enc28j60.Bank
	valid bool
}

// Bank returns the tracked bank or BankAny if unknown.
func (d *Decoder) Bank() enc28j60.Bank {
	if !d.valid {
		return enc28j60.BankAny
	}
	return d.bank
}

// Decode interprets one transaction. miso may be nil for captures without
// the chip's output, in which case read values are zero.
func (d *Decoder) Decode(mosi, miso []byte) (rec Record, err error) {
	if len(mosi) == 0 {
		return rec, errEmpty
	}
	if miso != nil && len(miso) < len(mosi) {
		return rec, errBadLength
	}
	op, arg := enc28j60.DecodeOp(mosi[0])
	rec.Op = op
	rec.Repeat = 1
	switch op {
	case enc28j60.OpSRC:
		d.bank, d.valid = enc28j60.Bank0, true
		return rec, nil
	case enc28j60.OpRBM:
		if miso != nil {
			rec.Data = append([]byte(nil), miso[1:]...)
		}
		return rec, nil
	case enc28j60.OpWBM:
		rec.Data = append([]byte(nil), mosi[1:]...)
		return rec, nil
	}
	rec.Reg, rec.RegKnown = d.resolve(arg)
	at := 1
	if op == enc28j60.OpRCR && rec.RegKnown && rec.Reg.IsMACMII() {
		at = 2
	}
	if len(mosi) <= at {
		return rec, errShort
	}
	switch op {
	case enc28j60.OpRCR:
		if miso != nil {
			rec.Value = miso[at]
		}
	default:
		rec.Value = mosi[at]
	}
	if rec.Reg == enc28j60.ECON1 {
		d.trackECON1(op, rec.Value)
	}
	return rec, nil
}

func (d *Decoder) resolve(addr uint8) (enc28j60.Register, bool) {
	reg, ok := enc28j60.RegisterAt(d.Bank(), addr)
	if reg.Bank() == enc28j60.BankAny {
		return reg, true
	}
	if !d.valid {
		return reg, false
	}
	return reg, ok
}

func (d *Decoder) trackECON1(op enc28j60.Op, v uint8) {
	bsel := enc28j60.Bank(v & enc28j60.ECON1_BSEL_MASK)
	switch op {
	case enc28j60.OpRCR, enc28j60.OpWCR:
		d.bank, d.valid = bsel, true
	case enc28j60.OpBFS:
		d.bank |= bsel
	case enc28j60.OpBFC:
		d.bank &^= bsel
	}
}

// Compact merges consecutive identical records into one, accumulating Repeat.
func Compact(recs []Record) []Record {
	if len(recs) == 0 {
		return recs
	}
	out := recs[:1]
	for _, r := range recs[1:] {
		last := &out[len(out)-1]
		if last.equal(r) {
			last.Repeat += r.Repeat
			continue
		}
		out = append(out, r)
	}
	return out
}

func (r Record) equal(other Record) bool {
	return r.Op == other.Op && r.Reg == other.Reg && r.RegKnown == other.RegKnown &&
		r.Value == other.Value && bytes.Equal(r.Data, other.Data)
}

// String formats the record for human consumption, i.e:
//
//	RCR ESTAT = 0x01
//	WCR ERDPTL <- 0x00
//	BFS ECON1 |= 0x04
//	RBM [6] 4600400080
func (r Record) String() string {
	return string(r.AppendText(nil, 16))
}

// AppendText appends the String form to dst printing at most maxData buffer bytes.
func (r Record) AppendText(dst []byte, maxData int) []byte {
	if r.Repeat > 1 {
		dst = append(dst, 'x')
		dst = strconv.AppendInt(dst, int64(r.Repeat), 10)
		dst = append(dst, ' ')
	}
	dst = append(dst, r.Op.String()...)
	switch r.Op {
	case enc28j60.OpSRC:
		return dst
	case enc28j60.OpRBM, enc28j60.OpWBM:
		dst = append(dst, " ["...)
		dst = strconv.AppendInt(dst, int64(len(r.Data)), 10)
		dst = append(dst, "] "...)
		data := r.Data
		if maxData >= 0 && len(data) > maxData {
			data = data[:maxData]
		}
		dst = hex.AppendEncode(dst, data)
		if len(data) < len(r.Data) {
			dst = append(dst, "..."...)
		}
		return dst
	}
	dst = append(dst, ' ')
	if r.RegKnown {
		dst = append(dst, r.Reg.String()...)
	} else {
		dst = append(dst, "?0x"...)
		dst = strconv.AppendUint(dst, uint64(r.Reg.Addr()), 16)
	}
	switch r.Op {
	case enc28j60.OpRCR:
		dst = append(dst, " = 0x"...)
	case enc28j60.OpWCR:
		dst = append(dst, " <- 0x"...)
	case enc28j60.OpBFS:
		dst = append(dst, " |= 0x"...)
	case enc28j60.OpBFC:
		dst = append(dst, " &^= 0x"...)
	}
	if r.Value < 0x10 {
		dst = append(dst, '0')
	}
	return strconv.AppendUint(dst, uint64(r.Value), 16)
}
