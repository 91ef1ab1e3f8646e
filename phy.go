package enc28j60

import (
	"errors"
	"log/slog"
	"time"

	"github.com/soypat/lneto/phy"
)

// MII operations take 10.24µs to complete after being issued.
const miiSettle = 11 * time.Microsecond

func (d *Device) phyRead(addr uint8) (uint16, error) {
	err := d.write(MIREGADR, addr)
	if err != nil {
		return 0, err
	}
	err = d.write(MICMD, MICMD_MIIRD)
	if err != nil {
		return 0, err
	}
	time.Sleep(miiSettle)
	errBusy := d.waitMII()
	// MIIRD must be cleared even if the PHY never went idle.
	err = d.write(MICMD, 0)
	if errBusy != nil {
		return 0, errBusy
	} else if err != nil {
		return 0, err
	}
	lo, err := d.read(MIRDL)
	if err != nil {
		return 0, err
	}
	hi, err := d.read(MIRDH)
	return uint16(lo) | uint16(hi)<<8, err
}

func (d *Device) phyWrite(addr uint8, v uint16) error {
	err := d.write(MIREGADR, addr)
	if err != nil {
		return err
	}
	err = d.write(MIWRL, uint8(v))
	if err != nil {
		return err
	}
	// Writing MIWRH starts the MII transaction.
	err = d.write(MIWRH, uint8(v>>8))
	if err != nil {
		return err
	}
	time.Sleep(miiSettle)
	return d.waitMII()
}

func (d *Device) phyClearBits(addr uint8, mask uint16) error {
	v, err := d.phyRead(addr)
	if err != nil {
		return err
	}
	return d.phyWrite(addr, v&^mask)
}

// waitMII polls MISTAT.BUSY until clear.
func (d *Device) waitMII() error {
	mistat, err := d.poll(MISTAT, MISTAT_BUSY, 0, d.cfg.PHYTimeout, 0)
	if err == errPollTimeout {
		d.stats.PHYTimeouts++
		d.logerr("phy:busy-timeout", slog.Uint64("mistat", uint64(mistat)))
		return ErrPHYTimeout
	}
	return err
}

// ReadPHY reads a PHY register through the MII management interface.
func (d *Device) ReadPHY(addr uint8) (uint16, error) {
	d.lock()
	defer d.unlock()
	return d.phyRead(addr)
}

// WritePHY writes a PHY register through the MII management interface.
func (d *Device) WritePHY(addr uint8, v uint16) error {
	d.lock()
	defer d.unlock()
	return d.phyWrite(addr, v)
}

// LinkUp reports the current link status (PHSTAT2.LSTAT). Unlike
// PHSTAT1.LLSTAT this bit is not latched.
func (d *Device) LinkUp() (bool, error) {
	stat, err := d.ReadPHY(PHSTAT2)
	return stat&PHSTAT2_LSTAT != 0, err
}

// PHY returns a generic Clause 22 handle to the integrated PHY. Only the
// registers documented for the ENC28J60 PHY are meaningful.
func (d *Device) PHY() (*phy.Device, error) {
	var p phy.Device
	err := p.ConfigureAs22(d.MDIO(), 0)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PHYID returns the PHY identifier registers PHID1 and PHID2.
func (d *Device) PHYID() (id1, id2 uint16, err error) {
	p, err := d.PHY()
	if err != nil {
		return 0, 0, err
	}
	id1, err = p.ID1()
	if err != nil {
		return 0, 0, err
	}
	id2, err = p.ID2()
	return id1, id2, err
}

// MDIO returns the MII management interface as an MDIO bus with a single
// Clause 22 PHY at address 0.
func (d *Device) MDIO() phy.MDIOBus { return (*mdioBus)(d) }

type mdioBus Device

var _ phy.MDIOBus = (*mdioBus)(nil) // compile time guarantee of interface implementation.

var errMDIOAddr = errors.New("enc28j60: only Clause 22 PHY address 0 registers 0..31 exist")

func (m *mdioBus) Read(phyAddr, devAddr uint8, regAddr uint16) (uint16, error) {
	if phyAddr != 0 || devAddr != 0 || regAddr > 0x1f {
		return 0, errMDIOAddr
	}
	return (*Device)(m).ReadPHY(uint8(regAddr))
}

func (m *mdioBus) Write(phyAddr, devAddr uint8, regAddr, value uint16) error {
	if phyAddr != 0 || devAddr != 0 || regAddr > 0x1f {
		return errMDIOAddr
	}
	return (*Device)(m).WritePHY(uint8(regAddr), value)
}
