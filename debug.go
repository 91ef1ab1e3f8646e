package enc28j60

import (
	"context"
	"encoding/hex"
	"log/slog"
)

const (
	levelTrace slog.Level = slog.LevelDebug - 1
	// print out raw bus transactions at trace level.
	printLowestLevelBusTransactions = true
)

// SetLogger sets the logger used by the device. A nil logger disables logging.
func (d *Device) SetLogger(l *slog.Logger) {
	d.lock()
	defer d.unlock()
	d.setLogger(l)
}

func (d *Device) setLogger(l *slog.Logger) {
	d.logger = l
	d._traceenabled = l != nil && l.Handler().Enabled(context.Background(), levelTrace)
}

func (d *Device) logerr(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelError, msg, attrs...)
}

func (d *Device) warn(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelWarn, msg, attrs...)
}

func (d *Device) info(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelInfo, msg, attrs...)
}

func (d *Device) debug(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelDebug, msg, attrs...)
}

func (d *Device) trace(msg string, attrs ...slog.Attr) {
	d.logattrs(levelTrace, msg, attrs...)
}

func (d *Device) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if d.logger != nil {
		d.logger.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

// traceTx logs a bus transaction. Only call when d._traceenabled is set.
func (d *Device) traceTx(w, r []byte) {
	if !printLowestLevelBusTransactions {
		return
	}
	op, arg := DecodeOp(w[0])
	attrs := [4]slog.Attr{
		slog.String("op", op.String()),
		slog.Uint64("arg", uint64(arg)),
		slog.String("mosi", hexstr(w[1:])),
	}
	n := 3
	if len(r) > 1 {
		attrs[3] = slog.String("miso", hexstr(r[1:]))
		n++
	}
	d.trace("enc:tx", attrs[:n]...)
}

func hexstr(b []byte) string {
	const maxShown = 16
	if len(b) > maxShown {
		return hex.EncodeToString(b[:maxShown]) + "..."
	}
	return hex.EncodeToString(b)
}
