// Package enc28j60 implements a driver for the Microchip ENC28J60 stand-alone
// 10BASE-T Ethernet controller with SPI interface.
//
// The driver owns the chip's register bank selection, the indirect PHY
// access protocol, the receive ring bookkeeping and the single transmit slot.
// Frames are exchanged with a host network stack through [Device.SendEth] and
// the handler registered with [Device.RecvEthHandle].
package enc28j60

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers"
)

var (
	ErrPHYTimeout     = errors.New("enc28j60: PHY busy timeout")
	ErrTxTimeout      = errors.New("enc28j60: transmit request did not complete")
	ErrClockTimeout   = errors.New("enc28j60: oscillator start-up timeout")
	ErrAllocFailed    = errors.New("enc28j60: frame allocation failed, frame dropped")
	ErrTxFailed       = errors.New("enc28j60: transmit status not OK")
	ErrFrameSize      = errors.New("enc28j60: invalid frame size")
	ErrRingCorrupt    = errors.New("enc28j60: receive ring header out of range")
	ErrNotInitialized = errors.New("enc28j60: device not initialized")
)

// OutputPin sets the level of a digital output, i.e: machine.Pin.Set.
type OutputPin func(level bool)

// Device is an ENC28J60 attached over SPI. Its exported methods are safe
// for concurrent use.
type Device struct {
	mu     sync.Mutex
	spi    drivers.SPI
	cs     OutputPin
	logger *slog.Logger
	// Mirror of ECON1.BSEL. BankAny means unknown.
	bank Bank
	// Start of the next unread receive packet record.
	nextPacket  uint16
	mac         [6]byte
	rcvEth      func([]byte) error
	alloc       func(n int) []byte
	cfg         Config
	stats       Stats
	initialized bool
	// Set from interrupt context.
	pending       atomic.Bool
	_traceenabled bool
	// sbuf/rbuf are the MOSI/MISO scratch buffers used by RBM and WBM.
	sbuf [1 + MaxFrameLength]byte
	rbuf [1 + MaxFrameLength]byte
	// rxframe receives frames when no Config.Alloc is set.
	rxframe [MaxFrameLength]byte
}

// Config is passed to [Device.Init].
type Config struct {
	// MAC is the hardware address programmed into MAADR1..MAADR6.
	MAC [6]byte
	// Logger is optional, nil disables logging.
	Logger *slog.Logger
	// Alloc returns a buffer of at least n bytes for a received frame. The
	// handler takes ownership of the buffer. Returning nil or a short buffer
	// drops the frame. If Alloc is nil frames are read into an internal buffer
	// which is only valid for the duration of the handler call.
	Alloc func(n int) []byte

	// ClockTimeout bounds the wait for ESTAT.CLKRDY after reset.
	ClockTimeout time.Duration
	// ClockPollInterval is the delay between ESTAT.CLKRDY polls.
	ClockPollInterval time.Duration
	// PHYTimeout bounds the MISTAT.BUSY wait on PHY accesses.
	PHYTimeout time.Duration
	// TxTimeout bounds the wait for ECON1.TXRTS to clear after a transmit request.
	TxTimeout time.Duration
}

// DefaultConfig returns a configuration with the given MAC address and
// timeouts well above the datasheet's worst case figures.
func DefaultConfig(mac [6]byte) Config {
	return Config{
		MAC:               mac,
		ClockTimeout:      2 * time.Second,
		ClockPollInterval: 200 * time.Millisecond,
		PHYTimeout:        10 * time.Millisecond,
		TxTimeout:         50 * time.Millisecond,
	}
}

// Stats are running counters of driver events since Init.
type Stats struct {
	RxPackets       uint32
	RxBytes         uint32
	RxDropped       uint32 // Receive status vector not OK.
	RxAllocFailed   uint32
	RxOverflows     uint32 // EIR.RXERIF occurrences.
	RxRingResets    uint32
	RxHandlerErrors uint32
	TxPackets       uint32
	TxBytes         uint32
	TxErrors        uint32
	TxTimeouts      uint32
	PHYTimeouts     uint32
}

// New returns a device on the given bus. cs is the active-low chip select and
// may be nil when the bus drives chip select itself (i.e: Linux spidev).
func New(spi drivers.SPI, cs OutputPin) *Device {
	d := &Device{
		spi:  spi,
		cs:   cs,
		bank: BankAny,
		cfg:  DefaultConfig([6]byte{}),
	}
	d.csEnable(false)
	return d
}

// Init resets and configures the chip. The receiver is enabled on return.
func (d *Device) Init(cfg Config) (err error) {
	d.lock()
	defer d.unlock()
	def := DefaultConfig(cfg.MAC)
	if cfg.ClockTimeout <= 0 {
		cfg.ClockTimeout = def.ClockTimeout
	}
	if cfg.ClockPollInterval < 0 {
		cfg.ClockPollInterval = 0
	}
	if cfg.PHYTimeout <= 0 {
		cfg.PHYTimeout = def.PHYTimeout
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = def.TxTimeout
	}
	d.cfg = cfg
	d.alloc = cfg.Alloc
	d.setLogger(cfg.Logger)
	d.initialized = false
	d.stats = Stats{}
	start := time.Now()
	d.info("Init:start")
	err = d.init(cfg)
	if err != nil {
		d.logerr("Init:failed", slog.String("err", err.Error()))
		return err
	}
	d.initialized = true
	d.info("Init:done", slog.Duration("elapsed", time.Since(start)), slog.String("mac", net.HardwareAddr(d.mac[:]).String()))
	return nil
}

func (d *Device) init(cfg Config) (err error) {
	// 1. Soft reset.
	err = d.src()
	if err != nil {
		return err
	}

	// 2. Wait for the oscillator start-up timer.
	_, err = d.poll(ESTAT, ESTAT_CLKRDY, ESTAT_CLKRDY, cfg.ClockTimeout, cfg.ClockPollInterval)
	if err == errPollTimeout {
		return ErrClockTimeout
	} else if err != nil {
		return err
	}

	// 3. The bank mirror is unknown after reset.
	err = d.forceBank0()
	if err != nil {
		return err
	}
	rev, err := d.read(EREVID)
	if err != nil {
		return err
	}
	d.info("Init:silicon", slog.Uint64("revid", uint64(rev)))

	// 4. Hold transmit and receive logic in reset, auto-increment buffer pointers.
	err = d.bfs(ECON1, ECON1_TXRST|ECON1_RXRST)
	if err == nil {
		err = d.bfc(ECON1, ECON1_RXEN)
	}
	if err == nil {
		err = d.bfs(ECON2, ECON2_AUTOINC)
	}
	if err != nil {
		return err
	}

	// 5. Receive ring bounds.
	err = d.setRxArea()
	if err != nil {
		return err
	}

	// 6. Half-duplex, matching the board wiring (LEDB drives duplex at reset).
	err = d.phyClearBits(PHSTAT2, PHSTAT2_DPXSTAT)
	if err != nil {
		return err
	}
	err = d.phyClearBits(PHCON1, PHCON1_PDPXMD)
	if err != nil {
		return err
	}

	// 7. Station address.
	err = d.setMAC(cfg.MAC)
	if err != nil {
		return err
	}

	// 8. Receive filter: unicast to us, broadcast, multicast, valid CRC only.
	err = d.write(ERXFCON, ERXFCON_UCEN|ERXFCON_CRCEN|ERXFCON_BCEN|ERXFCON_MCEN)
	if err != nil {
		return err
	}

	// 9. MAC: pause frames, automatic padding to 60 bytes plus CRC, frame
	// length checking, maximum frame length and inter-packet gaps.
	macregs := [...]struct {
		reg Register
		val uint8
	}{
		{MACON1, MACON1_TXPAUS | MACON1_RXPAUS | MACON1_MARXEN},
		{MACON3, 1<<MACON3_PADCFG_SHIFT | MACON3_TXCRCEN | MACON3_FRMLNEN},
		{MAMXFLL, MaxFrameLength & 0xff},
		{MAMXFLH, MaxFrameLength >> 8},
		{MABBIPG, 0x12},
		{MAIPGL, 0x12},
		{MAIPGH, 0x0c},
	}
	for _, mr := range macregs {
		err = d.write(mr.reg, mr.val)
		if err != nil {
			return err
		}
	}

	// 10. Global and packet pending interrupts.
	err = d.bfs(EIE, EIE_INTIE|EIE_PKTIE)
	if err != nil {
		return err
	}

	// 11. Release resets and start receiving.
	err = d.bfc(ECON1, ECON1_TXRST|ECON1_RXRST)
	if err == nil {
		err = d.bfs(ECON1, ECON1_RXEN)
	}
	if err != nil {
		return err
	}
	return d.selectBank(Bank0)
}

// setRxArea programs the receive ring bounds and rewinds the read side.
func (d *Device) setRxArea() (err error) {
	d.nextPacket = RxStart
	regs := [...]struct {
		reg Register
		val uint16
	}{
		{ERXSTL, RxStart},
		{ERXNDL, RxEnd},
		{ERXRDPTL, RxStart},
		{ETXSTL, TxStart},
	}
	for _, r := range regs {
		err = d.write16(r.reg, r.val)
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) setMAC(mac [6]byte) error {
	regs := [6]Register{MAADR1, MAADR2, MAADR3, MAADR4, MAADR5, MAADR6}
	for i, reg := range regs {
		err := d.write(reg, mac[i])
		if err != nil {
			return err
		}
	}
	d.mac = mac
	return nil
}

// MACAddress reads the station address back from the MAADR registers.
func (d *Device) MACAddress() (mac [6]byte, err error) {
	d.lock()
	defer d.unlock()
	regs := [6]Register{MAADR1, MAADR2, MAADR3, MAADR4, MAADR5, MAADR6}
	for i, reg := range regs {
		mac[i], err = d.read(reg)
		if err != nil {
			return mac, err
		}
	}
	return mac, nil
}

// Action services pending chip interrupts: received packets are drained from
// the ring and handed to the receive handler, receive overflows are counted
// and acknowledged. Returns the number of frames delivered.
func (d *Device) Action() (int, error) {
	d.lock()
	defer d.unlock()
	if !d.initialized {
		return 0, ErrNotInitialized
	}
	eir, err := d.read(EIR)
	if err != nil {
		return 0, err
	}
	if eir&EIR_RXERIF != 0 {
		d.stats.RxOverflows++
		d.warn("Action:rx-overflow", slog.Uint64("eir", uint64(eir)))
		err = d.bfc(EIR, EIR_RXERIF)
		if err != nil {
			return 0, err
		}
	}
	if eir&EIR_PKTIF == 0 {
		return 0, nil
	}
	return d.drain(-1)
}

// Interrupt latches a pending chip interrupt. It is safe to call from an
// interrupt handler connected to the INT pin falling edge.
func (d *Device) Interrupt() {
	d.pending.Store(true)
}

// HandleInterrupt calls [Device.Action] if an interrupt was latched by
// [Device.Interrupt] since the last call.
func (d *Device) HandleInterrupt() (int, error) {
	if !d.pending.Swap(false) {
		return 0, nil
	}
	return d.Action()
}

// Stats returns a snapshot of the driver counters.
func (d *Device) Stats() Stats {
	d.lock()
	defer d.unlock()
	return d.stats
}

// ReadRegister reads a control register, switching banks if needed.
func (d *Device) ReadRegister(reg Register) (uint8, error) {
	d.lock()
	defer d.unlock()
	return d.read(reg)
}

// WriteRegister writes a control register, switching banks if needed.
func (d *Device) WriteRegister(reg Register, v uint8) error {
	d.lock()
	defer d.unlock()
	return d.write(reg, v)
}

// SetRegisterBits sets the mask bits of reg.
func (d *Device) SetRegisterBits(reg Register, mask uint8) error {
	d.lock()
	defer d.unlock()
	return d.setBits(reg, mask)
}

// ClearRegisterBits clears the mask bits of reg.
func (d *Device) ClearRegisterBits(reg Register, mask uint8) error {
	d.lock()
	defer d.unlock()
	return d.clearBits(reg, mask)
}

// ReadBuffer reads len(dst) bytes of packet buffer memory starting at addr.
// The read wraps inside the receive ring when ECON2.AUTOINC is set.
func (d *Device) ReadBuffer(addr uint16, dst []byte) error {
	d.lock()
	defer d.unlock()
	err := d.write16(ERDPTL, addr&bufferMask)
	if err != nil {
		return err
	}
	return d.rbm(dst)
}

// Reset issues a soft reset. Init must be called again before using the device.
func (d *Device) Reset() error {
	d.lock()
	defer d.unlock()
	d.initialized = false
	return d.src()
}

var errPollTimeout = errors.New("poll timeout")

// poll reads reg until reg&mask == want or the timeout expires, sleeping
// interval between reads. On timeout errPollTimeout is returned.
func (d *Device) poll(reg Register, mask, want uint8, timeout, interval time.Duration) (got uint8, err error) {
	deadline := time.Now().Add(timeout)
	for {
		got, err = d.read(reg)
		if err != nil || got&mask == want {
			return got, err
		}
		if time.Since(deadline) >= 0 {
			return got, errPollTimeout
		}
		if interval > 0 {
			time.Sleep(interval)
		}
	}
}

func (d *Device) lock()   { d.mu.Lock() }
func (d *Device) unlock() { d.mu.Unlock() }
