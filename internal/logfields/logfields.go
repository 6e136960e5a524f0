package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyUnit       = "unit"
	KeyUnitID     = "unit_id"
	KeyEvent      = "event"
	KeyPath       = "path"
	KeyInstanceID = "instance_id"
	KeySessionID  = "session_id"
	KeyReader     = "reader"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Unit(name string) slog.Attr        { return slog.String(KeyUnit, name) }
func UnitID(id int64) slog.Attr         { return slog.Int64(KeyUnitID, id) }
func Event(kind string) slog.Attr       { return slog.String(KeyEvent, kind) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func InstanceID(id string) slog.Attr    { return slog.String(KeyInstanceID, id) }
func SessionID(id string) slog.Attr     { return slog.String(KeySessionID, id) }
func Reader(ext string) slog.Attr       { return slog.String(KeyReader, ext) }
func Count(n int) slog.Attr             { return slog.Int(KeyCount, n) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d)/float64(time.Millisecond))
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
