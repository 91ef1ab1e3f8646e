package encsim

import (
	"encoding/binary"

	"github.com/soypat/enc28j60"
)

// Receive status vector bits set by Inject.
const (
	rsvOK        = 1 << 23
	rsvMulticast = 1 << 24
	rsvBroadcast = 1 << 25
)

// Inject has the chip receive frame as if it arrived from the wire, frame
// including FCS. It returns false if the frame was dropped because the
// receiver is disabled or the ring is full, in which case EIR.RXERIF is set
// on overflow.
func (c *Chip) Inject(frame []byte) bool {
	return c.InjectStatus(frame, true)
}

// InjectStatus is like Inject but lets the caller clear the received OK bit
// of the status vector.
func (c *Chip) InjectStatus(frame []byte, ok bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.regs[0][0x1f]&enc28j60.ECON1_RXEN == 0 || c.regs[0][0x1f]&enc28j60.ECON1_RXRST != 0 {
		return false
	}
	var status uint32
	if ok {
		status |= rsvOK
	}
	if len(frame) >= 6 {
		if frame[0]&1 != 0 {
			status |= rsvMulticast
		}
		if [6]byte(frame[:6]) == [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff} {
			status |= rsvBroadcast
		}
	}
	status |= uint32(len(frame)) & 0xffff
	wr := c.reg16(0, 0x0e)
	need := 6 + len(frame) + len(frame)&1
	if need > c.freeSpace() || c.regs[1][0x19] == 0xff {
		c.raise(enc28j60.EIR_RXERIF)
		c.regs[0][0x1d] |= enc28j60.ESTAT_BUFER
		return false
	}
	next := c.ringAdd(wr, uint16(need))
	c.writeRecordLocked(wr, next, status, frame)
	c.setReg16(0, 0x0e, next)
	return true
}

// WriteRecord writes a receive record verbatim at addr with the given next
// pointer and status vector, then increments the packet counter. ERXWRPT is
// set to next.
func (c *Chip) WriteRecord(addr, next uint16, status uint32, frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeRecordLocked(addr, next, status, frame)
	c.setReg16(0, 0x0e, next)
}

func (c *Chip) writeRecordLocked(addr, next uint16, status uint32, frame []byte) {
	var hdr [6]byte
	binary.LittleEndian.PutUint16(hdr[0:2], next)
	binary.LittleEndian.PutUint32(hdr[2:6], status)
	a := addr
	for _, b := range hdr {
		c.mem[a] = b
		a = c.ringAdd(a, 1)
	}
	for _, b := range frame {
		c.mem[a] = b
		a = c.ringAdd(a, 1)
	}
	c.regs[1][0x19]++
	c.raise(enc28j60.EIR_PKTIF)
}

// ringAdd advances addr by n bytes inside [ERXST, ERXND].
func (c *Chip) ringAdd(addr, n uint16) uint16 {
	st := int(c.reg16(0, 0x08))
	nd := int(c.reg16(0, 0x0a))
	size := nd - st + 1
	if size <= 0 {
		return (addr + n) & memMask
	}
	v := int(addr) + int(n)
	for v > nd {
		v -= size
	}
	return uint16(v)
}

// freeSpace implements the receive buffer free space computation of the datasheet.
func (c *Chip) freeSpace() int {
	st := int(c.reg16(0, 0x08))
	nd := int(c.reg16(0, 0x0a))
	rd := int(c.reg16(0, 0x0c))
	wr := int(c.reg16(0, 0x0e))
	switch {
	case wr > rd:
		return (nd - st) - (wr - rd)
	case wr == rd:
		return nd - st
	default:
		return rd - wr - 1
	}
}

// SetLink sets the PHY link status bits.
func (c *Chip) SetLink(up bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if up {
		c.phy[enc28j60.PHSTAT1] |= enc28j60.PHSTAT1_LLSTAT
		c.phy[enc28j60.PHSTAT2] |= enc28j60.PHSTAT2_LSTAT
	} else {
		c.phy[enc28j60.PHSTAT1] &^= enc28j60.PHSTAT1_LLSTAT
		c.phy[enc28j60.PHSTAT2] &^= enc28j60.PHSTAT2_LSTAT
	}
}

// Reg returns the current value of a control register without side effects.
func (c *Chip) Reg(r enc28j60.Register) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.reg(uint8(r.Bank()), r.Addr())
}

// Reg16 returns the register pair starting at the low register regL.
func (c *Chip) Reg16(regL enc28j60.Register) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg16(uint8(regL.Bank()), regL.Addr())
}

// SetReg sets a control register without side effects.
func (c *Chip) SetReg(r enc28j60.Register, v uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.reg(uint8(r.Bank()), r.Addr()) = v
}

// Bank returns the bank selected by ECON1.BSEL.
func (c *Chip) Bank() enc28j60.Bank {
	c.mu.Lock()
	defer c.mu.Unlock()
	return enc28j60.Bank(c.bank())
}

// PHY returns a PHY register.
func (c *Chip) PHY(addr uint8) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phy[addr&0x1f]
}

// Mem returns a copy of n bytes of buffer memory at addr.
func (c *Chip) Mem(addr uint16, n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = c.mem[(int(addr)+i)&memMask]
	}
	return b
}

// Transmitted returns the frames successfully transmitted so far.
func (c *Chip) Transmitted() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.transmitted...)
}

// PacketDecrements returns the number of ECON2.PKTDEC commands since reset.
func (c *Chip) PacketDecrements() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pktdecs
}

// Log returns the transactions recorded since the last ClearLog.
func (c *Chip) Log() []Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Transaction(nil), c.log...)
}

// ClearLog discards recorded transactions.
func (c *Chip) ClearLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = c.log[:0]
}

// SetLogging enables or disables transaction recording. Enabled by default.
func (c *Chip) SetLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nolog = !enabled
}
