package enc28j60

import (
	"encoding/binary"
	"log/slog"
)

// RxStatus is the 32-bit receive status vector stored after the next packet
// pointer of every record in the receive ring.
type RxStatus uint32

// ByteCount is the received frame length including the FCS.
func (s RxStatus) ByteCount() uint16 { return uint16(s) }

func (s RxStatus) LongEvent() bool { return s&(1<<16) != 0 }
func (s RxStatus) CarrierEvent() bool { return s&(1<<18) != 0 }
func (s RxStatus) CRCError() bool { return s&(1<<20) != 0 }
func (s RxStatus) LengthCheckErr() bool { return s&(1<<21) != 0 }
func (s RxStatus) LengthOutOfRange() bool {
	return s&(1<<22) != 0
}

// ReceivedOK is set when the frame has a valid CRC, no symbol errors and a
// valid length field.
func (s RxStatus) ReceivedOK() bool { return s&(1<<23) != 0 }
func (s RxStatus) Multicast() bool { return s&(1<<24) != 0 }
func (s RxStatus) Broadcast() bool { return s&(1<<25) != 0 }

// rxHeader is the 6 byte record header: next packet pointer and status vector.
type rxHeader struct {
	next   uint16
	status RxStatus
}

func decodeRxHeader(b []byte) rxHeader {
	_ = b[rxHeaderLen-1]
	return rxHeader{
		next:   binary.LittleEndian.Uint16(b[0:2]),
		status: RxStatus(binary.LittleEndian.Uint32(b[2:6])),
	}
}

// PollOne receives a single packet if one is pending in the ring. The packet
// counter is read directly since EIR.PKTIF is not reliable on all revisions.
// Returns true if a frame was delivered to the receive handler.
func (d *Device) PollOne() (bool, error) {
	d.lock()
	defer d.unlock()
	if !d.initialized {
		return false, ErrNotInitialized
	}
	n, err := d.drain(1)
	return n > 0, err
}

// drain receives packets while EPKTCNT is non-zero, at most limit packets if
// limit is positive. Receive errors do not stop the drain since the ring
// bookkeeping has already advanced past the offending record. The first error
// is returned.
func (d *Device) drain(limit int) (delivered int, firstErr error) {
	// EPKTCNT is 8 bits wide, guard against a chip that never decrements it.
	const maxIter = 256
	if limit <= 0 || limit > maxIter {
		limit = maxIter
	}
	for i := 0; i < limit; i++ {
		pktcnt, err := d.read(EPKTCNT)
		if err != nil {
			return delivered, err
		} else if pktcnt == 0 {
			break
		}
		ok, err := d.recvOne()
		if ok {
			delivered++
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if err == ErrRingCorrupt {
				break // Ring was reset, nothing left to drain.
			} else if !isRecvDropErr(err) {
				return delivered, firstErr // Bus error.
			}
		}
	}
	return delivered, firstErr
}

func isRecvDropErr(err error) bool {
	return err == ErrAllocFailed || err == ErrFrameSize
}

// recvOne processes the receive record at nextPacket. Bookkeeping (ERXRDPT
// and PKTDEC) is always performed once the header has been read, also when
// the frame itself is dropped, so the ring stays in sync with the hardware.
func (d *Device) recvOne() (delivered bool, err error) {
	err = d.write16(ERDPTL, d.nextPacket)
	if err != nil {
		return false, err
	}
	var buf [rxHeaderLen]byte
	err = d.rbm(buf[:])
	if err != nil {
		return false, err
	}
	hdr := decodeRxHeader(buf[:])
	if hdr.next > RxEnd {
		d.logerr("rx:corrupt-header", slog.Uint64("at", uint64(d.nextPacket)), slog.Uint64("next", uint64(hdr.next)))
		err = d.resetRx()
		if err != nil {
			return false, err
		}
		return false, ErrRingCorrupt
	}
	d.nextPacket = hdr.next
	count := int(hdr.status.ByteCount())

	var frame []byte
	var dropErr error
	switch {
	case !hdr.status.ReceivedOK():
		d.stats.RxDropped++
		d.debug("rx:status-not-ok", slog.Uint64("rsv", uint64(hdr.status)))
	case count == 0 || count > MaxFrameLength:
		d.stats.RxDropped++
		d.logerr("rx:bad-length", slog.Int("count", count))
		dropErr = ErrFrameSize
	default:
		frame = d.rxframe[:]
		if d.alloc != nil {
			frame = d.alloc(count)
		}
		if len(frame) < count {
			d.stats.RxAllocFailed++
			d.logerr("rx:alloc-failed", slog.Int("count", count))
			frame = nil
			dropErr = ErrAllocFailed
			break
		}
		frame = frame[:count]
		err = d.rbm(frame)
		if err != nil {
			return false, err
		}
	}

	// Free the record up to the byte preceding the next one.
	rdpt := hdr.next - 1
	if hdr.next == RxStart {
		rdpt = RxEnd
	}
	err = d.write16(ERXRDPTL, rdpt)
	if err != nil {
		return false, err
	}
	err = d.bfs(ECON2, ECON2_PKTDEC)
	if err != nil {
		return false, err
	}
	if frame == nil {
		return false, dropErr
	}

	d.stats.RxPackets++
	d.stats.RxBytes += uint32(count)
	if d._traceenabled {
		d.trace("rx:frame", slog.Int("len", count), slog.Uint64("next", uint64(hdr.next)))
	}
	if d.rcvEth != nil {
		err = d.rcvEth(frame)
		if err != nil {
			d.stats.RxHandlerErrors++
			d.debug("rx:handler", slog.String("err", err.Error()))
		}
	}
	return true, nil
}

// resetRx resets the receive logic and rewinds the ring.
func (d *Device) resetRx() error {
	d.stats.RxRingResets++
	err := d.bfc(ECON1, ECON1_RXEN)
	if err == nil {
		err = d.bfs(ECON1, ECON1_RXRST)
	}
	if err == nil {
		err = d.bfc(ECON1, ECON1_RXRST)
	}
	if err == nil {
		err = d.setRxArea()
	}
	if err == nil {
		err = d.bfs(ECON1, ECON1_RXEN)
	}
	return err
}
