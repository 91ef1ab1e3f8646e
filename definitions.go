package enc28j60

import "strconv"

// Bank is one of the four control register pages of the ENC28J60.
// Only one bank is selected at a time through ECON1.BSEL.
type Bank uint8

const (
	Bank0 Bank = iota
	Bank1
	Bank2
	Bank3
	// BankAny marks registers mapped in every bank (EIE, EIR, ESTAT, ECON2, ECON1).
	BankAny Bank = 0xff
)

func (b Bank) String() string {
	if b == BankAny {
		return "any"
	}
	return "bank" + strconv.Itoa(int(b))
}

// Register identifies an 8-bit control register by address and bank.
//
//	bits 0..4: address within bank
//	bits 5..6: bank
//	bit  7:    MAC/MII register (reads clock out a dummy byte first)
type Register uint8

const (
	regAddrMask = 0x1f
	regBankPos  = 5
	regMACMII   = 1 << 7
	// Addresses at or above commonRegStart are mapped in all banks.
	commonRegStart = 0x1b
)

func mkreg(bank Bank, addr uint8) Register { return Register(addr&regAddrMask) | Register(bank)<<regBankPos }

// mkmreg makes a MAC or MII register.
func mkmreg(bank Bank, addr uint8) Register { return mkreg(bank, addr) | regMACMII }

// Addr returns the 5-bit address used in RCR/WCR/BFS/BFC opcodes.
func (r Register) Addr() uint8 { return uint8(r) & regAddrMask }

// Bank returns the bank the register lives in, or BankAny for registers
// replicated across all banks.
func (r Register) Bank() Bank {
	if r.Addr() >= commonRegStart {
		return BankAny
	}
	return Bank(uint8(r)>>regBankPos) & 0b11
}

// IsMACMII reports whether r is a MAC or MII register. These are read with an
// extra dummy byte and do not support the bit field set/clear commands.
func (r Register) IsMACMII() bool { return r&regMACMII != 0 }

// ETH registers common to all banks.
const (
	EIE   Register = 0x1b
	EIR   Register = 0x1c
	ESTAT Register = 0x1d
	ECON2 Register = 0x1e
	ECON1 Register = 0x1f
)

// Bank 0.
var (
	ERDPTL   = mkreg(Bank0, 0x00)
	ERDPTH   = mkreg(Bank0, 0x01)
	EWRPTL   = mkreg(Bank0, 0x02)
	EWRPTH   = mkreg(Bank0, 0x03)
	ETXSTL   = mkreg(Bank0, 0x04)
	ETXSTH   = mkreg(Bank0, 0x05)
	ETXNDL   = mkreg(Bank0, 0x06)
	ETXNDH   = mkreg(Bank0, 0x07)
	ERXSTL   = mkreg(Bank0, 0x08)
	ERXSTH   = mkreg(Bank0, 0x09)
	ERXNDL   = mkreg(Bank0, 0x0a)
	ERXNDH   = mkreg(Bank0, 0x0b)
	ERXRDPTL = mkreg(Bank0, 0x0c)
	ERXRDPTH = mkreg(Bank0, 0x0d)
	ERXWRPTL = mkreg(Bank0, 0x0e)
	ERXWRPTH = mkreg(Bank0, 0x0f)
	EDMASTL  = mkreg(Bank0, 0x10)
	EDMASTH  = mkreg(Bank0, 0x11)
	EDMANDL  = mkreg(Bank0, 0x12)
	EDMANDH  = mkreg(Bank0, 0x13)
	EDMADSTL = mkreg(Bank0, 0x14)
	EDMADSTH = mkreg(Bank0, 0x15)
	EDMACSL  = mkreg(Bank0, 0x16)
	EDMACSH  = mkreg(Bank0, 0x17)
)

// Bank 1.
var (
	EHT0    = mkreg(Bank1, 0x00)
	EPMM0   = mkreg(Bank1, 0x08)
	EPMCSL  = mkreg(Bank1, 0x10)
	EPMCSH  = mkreg(Bank1, 0x11)
	EPMOL   = mkreg(Bank1, 0x14)
	EPMOH   = mkreg(Bank1, 0x15)
	ERXFCON = mkreg(Bank1, 0x18)
	EPKTCNT = mkreg(Bank1, 0x19)
)

// Bank 2, MAC and MII registers.
var (
	MACON1   = mkmreg(Bank2, 0x00)
	MACON3   = mkmreg(Bank2, 0x02)
	MACON4   = mkmreg(Bank2, 0x03)
	MABBIPG  = mkmreg(Bank2, 0x04)
	MAIPGL   = mkmreg(Bank2, 0x06)
	MAIPGH   = mkmreg(Bank2, 0x07)
	MACLCON1 = mkmreg(Bank2, 0x08)
	MACLCON2 = mkmreg(Bank2, 0x09)
	MAMXFLL  = mkmreg(Bank2, 0x0a)
	MAMXFLH  = mkmreg(Bank2, 0x0b)
	MICMD    = mkmreg(Bank2, 0x12)
	MIREGADR = mkmreg(Bank2, 0x14)
	MIWRL    = mkmreg(Bank2, 0x16)
	MIWRH    = mkmreg(Bank2, 0x17)
	MIRDL    = mkmreg(Bank2, 0x18)
	MIRDH    = mkmreg(Bank2, 0x19)
)

// Bank 3. Note the MAADR byte order does not follow the address order.
var (
	MAADR5  = mkmreg(Bank3, 0x00)
	MAADR6  = mkmreg(Bank3, 0x01)
	MAADR3  = mkmreg(Bank3, 0x02)
	MAADR4  = mkmreg(Bank3, 0x03)
	MAADR1  = mkmreg(Bank3, 0x04)
	MAADR2  = mkmreg(Bank3, 0x05)
	EBSTSD  = mkreg(Bank3, 0x06)
	EBSTCON = mkreg(Bank3, 0x07)
	EBSTCSL = mkreg(Bank3, 0x08)
	EBSTCSH = mkreg(Bank3, 0x09)
	MISTAT  = mkmreg(Bank3, 0x0a)
	EREVID  = mkreg(Bank3, 0x12)
	ECOCON  = mkreg(Bank3, 0x15)
	EFLOCON = mkreg(Bank3, 0x17)
	EPAUSL  = mkreg(Bank3, 0x18)
	EPAUSH  = mkreg(Bank3, 0x19)
)

// EIE bits.
const (
	EIE_INTIE  = 0x80
	EIE_PKTIE  = 0x40
	EIE_DMAIE  = 0x20
	EIE_LINKIE = 0x10
	EIE_TXIE   = 0x08
	EIE_TXERIE = 0x02
	EIE_RXERIE = 0x01
)

// EIR bits.
const (
	EIR_PKTIF  = 0x40
	EIR_DMAIF  = 0x20
	EIR_LINKIF = 0x10
	EIR_TXIF   = 0x08
	EIR_TXERIF = 0x02
	EIR_RXERIF = 0x01
)

// ESTAT bits.
const (
	ESTAT_INT     = 0x80
	ESTAT_BUFER   = 0x40
	ESTAT_LATECOL = 0x10
	ESTAT_RXBUSY  = 0x04
	ESTAT_TXABRT  = 0x02
	ESTAT_CLKRDY  = 0x01
)

// ECON2 bits.
const (
	ECON2_AUTOINC = 0x80
	ECON2_PKTDEC  = 0x40
	ECON2_PWRSV   = 0x20
	ECON2_VRPS    = 0x08
)

// ECON1 bits.
const (
	ECON1_TXRST      = 0x80
	ECON1_RXRST      = 0x40
	ECON1_DMAST      = 0x20
	ECON1_CSUMEN     = 0x10
	ECON1_TXRTS      = 0x08
	ECON1_RXEN       = 0x04
	ECON1_BSEL1      = 0x02
	ECON1_BSEL0      = 0x01
	ECON1_BSEL_MASK  = ECON1_BSEL1 | ECON1_BSEL0
	ECON1_BSEL_SHIFT = 0
)

// ERXFCON bits.
const (
	ERXFCON_UCEN  = 0x80
	ERXFCON_ANDOR = 0x40
	ERXFCON_CRCEN = 0x20
	ERXFCON_PMEN  = 0x10
	ERXFCON_MPEN  = 0x08
	ERXFCON_HTEN  = 0x04
	ERXFCON_MCEN  = 0x02
	ERXFCON_BCEN  = 0x01
)

// MACON1 bits.
const (
	MACON1_TXPAUS  = 0x08
	MACON1_RXPAUS  = 0x04
	MACON1_PASSALL = 0x02
	MACON1_MARXEN  = 0x01
)

// MACON3 bits.
const (
	MACON3_PADCFG_SHIFT = 5
	MACON3_TXCRCEN      = 0x10
	MACON3_PHDREN       = 0x08
	MACON3_HFRMEN       = 0x04
	MACON3_FRMLNEN      = 0x02
	MACON3_FULDPX       = 0x01
)

// MICMD bits.
const (
	MICMD_MIISCAN = 0x02
	MICMD_MIIRD   = 0x01
)

// MISTAT bits.
const (
	MISTAT_NVALID = 0x04
	MISTAT_SCAN   = 0x02
	MISTAT_BUSY   = 0x01
)

// PHY register addresses, accessed through the MII registers.
const (
	PHCON1  = 0x00
	PHSTAT1 = 0x01
	PHID1   = 0x02
	PHID2   = 0x03
	PHCON2  = 0x10
	PHSTAT2 = 0x11
	PHIE    = 0x12
	PHIR    = 0x13
	PHLCON  = 0x14
)

// PHY register bits.
const (
	PHCON1_PRST    = 0x8000
	PHCON1_PLOOPBK = 0x4000
	PHCON1_PPWRSV  = 0x0800
	PHCON1_PDPXMD  = 0x0100

	PHSTAT1_PFDPX  = 0x1000
	PHSTAT1_PHDPX  = 0x0800
	PHSTAT1_LLSTAT = 0x0004
	PHSTAT1_JBSTAT = 0x0002

	PHCON2_FRCLNK = 0x4000
	PHCON2_TXDIS  = 0x2000
	PHCON2_JABBER = 0x0400
	PHCON2_HDLDIS = 0x0100

	PHSTAT2_TXSTAT  = 0x2000
	PHSTAT2_RXSTAT  = 0x1000
	PHSTAT2_COLSTAT = 0x0800
	PHSTAT2_LSTAT   = 0x0400
	PHSTAT2_DPXSTAT = 0x0200
	PHSTAT2_PLRITY  = 0x0020
)

// SPI instruction set. The upper three bits select the operation, the lower
// five carry the register address (or the constant 0x1a for buffer memory).
const (
	opRCR = 0b000 << 5 // Read Control Register.
	opRBM = 0b001<<5 | 0x1a
	opWCR = 0b010 << 5 // Write Control Register.
	opWBM = 0b011<<5 | 0x1a
	opBFS = 0b100 << 5 // Bit Field Set.
	opBFC = 0b101 << 5 // Bit Field Clear.
	opSRC = 0xff       // System Reset Command (soft reset).
)

// Op is a decoded SPI instruction.
type Op uint8

const (
	OpRCR Op = iota
	OpRBM
	OpWCR
	OpWBM
	OpBFS
	OpBFC
	opReserved
	OpSRC
)

// DecodeOp splits the first byte of a transaction into instruction and argument.
func DecodeOp(b byte) (op Op, arg uint8) {
	if b == opSRC {
		return OpSRC, regAddrMask
	}
	return Op(b >> 5), b & regAddrMask
}

func (op Op) String() (s string) {
	switch op {
	case OpRCR:
		s = "RCR"
	case OpRBM:
		s = "RBM"
	case OpWCR:
		s = "WCR"
	case OpWBM:
		s = "WBM"
	case OpBFS:
		s = "BFS"
	case OpBFC:
		s = "BFC"
	case OpSRC:
		s = "SRC"
	default:
		s = "reserved"
	}
	return s
}

// Memory map of the 8KiB packet buffer. The partition is fixed: the receive
// ring takes everything below the transmit slot.
const (
	bufferSize = 0x2000
	bufferMask = bufferSize - 1

	TxStart uint16 = 0x1fff - 0x600
	RxStart uint16 = 0x0000
	RxEnd   uint16 = TxStart - 1
)

const (
	// MaxFrameLength is the largest frame accepted by the MAC including FCS (MAMXFL).
	MaxFrameLength = 1518
	// MaxTxFrame is the largest frame SendEth accepts. The MAC appends the FCS.
	MaxTxFrame = 1514
	// MTU is the maximum payload of an Ethernet frame.
	MTU = 1500

	rxHeaderLen = 6
	txStatusLen = 7
)

var registerNames = [...]struct {
	r    Register
	name string
}{
	{EIE, "EIE"}, {EIR, "EIR"}, {ESTAT, "ESTAT"}, {ECON2, "ECON2"}, {ECON1, "ECON1"},
	{ERDPTL, "ERDPTL"}, {ERDPTH, "ERDPTH"}, {EWRPTL, "EWRPTL"}, {EWRPTH, "EWRPTH"},
	{ETXSTL, "ETXSTL"}, {ETXSTH, "ETXSTH"}, {ETXNDL, "ETXNDL"}, {ETXNDH, "ETXNDH"},
	{ERXSTL, "ERXSTL"}, {ERXSTH, "ERXSTH"}, {ERXNDL, "ERXNDL"}, {ERXNDH, "ERXNDH"},
	{ERXRDPTL, "ERXRDPTL"}, {ERXRDPTH, "ERXRDPTH"}, {ERXWRPTL, "ERXWRPTL"}, {ERXWRPTH, "ERXWRPTH"},
	{EDMASTL, "EDMASTL"}, {EDMASTH, "EDMASTH"}, {EDMANDL, "EDMANDL"}, {EDMANDH, "EDMANDH"},
	{EDMADSTL, "EDMADSTL"}, {EDMADSTH, "EDMADSTH"}, {EDMACSL, "EDMACSL"}, {EDMACSH, "EDMACSH"},
	{EHT0, "EHT0"}, {EPMM0, "EPMM0"}, {EPMCSL, "EPMCSL"}, {EPMCSH, "EPMCSH"},
	{EPMOL, "EPMOL"}, {EPMOH, "EPMOH"}, {ERXFCON, "ERXFCON"}, {EPKTCNT, "EPKTCNT"},
	{MACON1, "MACON1"}, {MACON3, "MACON3"}, {MACON4, "MACON4"}, {MABBIPG, "MABBIPG"},
	{MAIPGL, "MAIPGL"}, {MAIPGH, "MAIPGH"}, {MACLCON1, "MACLCON1"}, {MACLCON2, "MACLCON2"},
	{MAMXFLL, "MAMXFLL"}, {MAMXFLH, "MAMXFLH"}, {MICMD, "MICMD"}, {MIREGADR, "MIREGADR"},
	{MIWRL, "MIWRL"}, {MIWRH, "MIWRH"}, {MIRDL, "MIRDL"}, {MIRDH, "MIRDH"},
	{MAADR5, "MAADR5"}, {MAADR6, "MAADR6"}, {MAADR3, "MAADR3"}, {MAADR4, "MAADR4"},
	{MAADR1, "MAADR1"}, {MAADR2, "MAADR2"}, {EBSTSD, "EBSTSD"}, {EBSTCON, "EBSTCON"},
	{EBSTCSL, "EBSTCSL"}, {EBSTCSH, "EBSTCSH"}, {MISTAT, "MISTAT"}, {EREVID, "EREVID"},
	{ECOCON, "ECOCON"}, {EFLOCON, "EFLOCON"}, {EPAUSL, "EPAUSL"}, {EPAUSH, "EPAUSH"},
}

func (r Register) String() string {
	for _, rn := range registerNames {
		if rn.r == r {
			return rn.name
		}
	}
	return r.Bank().String() + ":0x" + strconv.FormatUint(uint64(r.Addr()), 16)
}

// RegisterNames returns the datasheet names of all control registers in bank order.
func RegisterNames() []string {
	names := make([]string, len(registerNames))
	for i, rn := range registerNames {
		names[i] = rn.name
	}
	return names
}

// LookupRegister returns the register with the given datasheet name, i.e: "ECON1".
func LookupRegister(name string) (Register, bool) {
	for _, rn := range registerNames {
		if rn.name == name {
			return rn.r, true
		}
	}
	return 0, false
}

// RegisterAt returns the named register at addr in bank, if any. The MAC/MII
// flag is recovered from the register table.
func RegisterAt(bank Bank, addr uint8) (Register, bool) {
	if addr&regAddrMask >= commonRegStart {
		return Register(addr & regAddrMask), true
	}
	plain := mkreg(bank, addr)
	for _, rn := range registerNames {
		if rn.r&^regMACMII == plain {
			return rn.r, true
		}
	}
	return plain, false
}
