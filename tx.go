package enc28j60

import (
	"encoding/binary"
	"log/slog"
)

// TxStatus is the 7 byte transmit status vector the chip writes right after
// the last byte of a transmitted frame.
type TxStatus uint64

func decodeTxStatus(b []byte) TxStatus {
	_ = b[txStatusLen-1]
	var buf [8]byte
	copy(buf[:], b[:txStatusLen])
	return TxStatus(binary.LittleEndian.Uint64(buf[:]))
}

// ByteCount is the number of bytes in the frame including padding and CRC.
func (s TxStatus) ByteCount() uint16 { return uint16(s) }

// CollisionCount is the number of collisions suffered before transmission.
func (s TxStatus) CollisionCount() uint8 { return uint8(s>>16) & 0xf }

func (s TxStatus) CRCError() bool { return s&(1<<20) != 0 }
func (s TxStatus) LengthCheckErr() bool { return s&(1<<21) != 0 }

// Done reports whether the frame was transmitted without errors.
func (s TxStatus) Done() bool { return s&(1<<23) != 0 }
func (s TxStatus) Multicast() bool { return s&(1<<24) != 0 }
func (s TxStatus) Broadcast() bool { return s&(1<<25) != 0 }
func (s TxStatus) ExcessiveDefer() bool { return s&(1<<27) != 0 }
func (s TxStatus) ExcessiveCollision() bool { return s&(1<<28) != 0 }
func (s TxStatus) LateCollision() bool { return s&(1<<29) != 0 }
func (s TxStatus) Giant() bool { return s&(1<<30) != 0 }
func (s TxStatus) Underrun() bool { return s&(1<<31) != 0 }

// WireBytes is the total number of bytes put on the wire including collisions.
func (s TxStatus) WireBytes() uint16 { return uint16(s >> 32) }

// SendEth transmits an Ethernet frame without FCS, which is appended by the
// MAC. It blocks until the chip reports the transmission finished.
func (d *Device) SendEth(frame []byte) error {
	d.lock()
	defer d.unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	_, err := d.send(frame)
	return err
}

func (d *Device) send(frame []byte) (TxStatus, error) {
	if len(frame) == 0 || len(frame) > MaxTxFrame {
		return 0, ErrFrameSize
	}
	// 1. Single transmit slot at TxStart.
	err := d.write16(ETXSTL, TxStart)
	if err != nil {
		return 0, err
	}
	err = d.write16(EWRPTL, TxStart)
	if err != nil {
		return 0, err
	}

	// 2. Per-packet control byte: use MACON3 settings.
	err = d.wbm([]byte{0x00})
	if err != nil {
		return 0, err
	}

	// 3. Frame.
	err = d.wbm(frame)
	if err != nil {
		return 0, err
	}

	// 4. ETXND points at the last frame byte.
	txEnd := TxStart + uint16(len(frame))
	err = d.write16(ETXNDL, txEnd)
	if err != nil {
		return 0, err
	}

	// 5. Errata 12: transmit logic can stall after a previous transmit error
	// or abort. Reset it before every request.
	err = d.bfs(ECON1, ECON1_TXRST)
	if err == nil {
		err = d.bfc(ECON1, ECON1_TXRST)
	}
	if err != nil {
		return 0, err
	}

	// 6. Request transmission.
	err = d.bfc(EIR, EIR_TXIF)
	if err == nil {
		err = d.bfs(ECON1, ECON1_TXRTS)
	}
	if err != nil {
		return 0, err
	}

	// 7. TXRTS clears when transmission ends, successful or not.
	econ1, err := d.poll(ECON1, ECON1_TXRTS, 0, d.cfg.TxTimeout, 0)
	if err == errPollTimeout {
		d.stats.TxTimeouts++
		d.logerr("tx:timeout", slog.Uint64("econ1", uint64(econ1)), slog.Int("len", len(frame)))
		// Abort the pending request so the next send starts clean.
		d.bfc(ECON1, ECON1_TXRTS)
		return 0, ErrTxTimeout
	} else if err != nil {
		return 0, err
	}

	// 8. Status vector follows the frame.
	err = d.write16(ERDPTL, txEnd+1)
	if err != nil {
		return 0, err
	}
	var buf [txStatusLen]byte
	err = d.rbm(buf[:])
	if err != nil {
		return 0, err
	}
	tsv := decodeTxStatus(buf[:])
	if !tsv.Done() {
		d.stats.TxErrors++
		d.warn("tx:failed", slog.Uint64("tsv", uint64(tsv)), slog.Int("len", len(frame)))
		return tsv, ErrTxFailed
	}
	d.stats.TxPackets++
	d.stats.TxBytes += uint32(len(frame))
	if d._traceenabled {
		d.trace("tx:done", slog.Int("len", len(frame)), slog.Uint64("collisions", uint64(tsv.CollisionCount())))
	}
	return tsv, nil
}
