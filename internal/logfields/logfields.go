package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyMode       = "mode"
	KeyPhase      = "phase"
	KeyArtifact   = "artifact"
	KeyIdentity   = "identity"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr      { return slog.String(KeyBuildID, id) }
func Mode(m string) slog.Attr          { return slog.String(KeyMode, m) }
func Phase(name string) slog.Attr      { return slog.String(KeyPhase, name) }
func Artifact(a string) slog.Attr      { return slog.String(KeyArtifact, a) }
func Identity(id string) slog.Attr     { return slog.String(KeyIdentity, id) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
