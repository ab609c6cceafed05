package domain

import "fmt"

// Errors surfaced by the moderation core.
var (
	ErrNotReady        = errf("game session is not ready")
	ErrScanInProgress  = errf("scan already in progress")
	ErrProtocolTimeout = errf("protocol request timed out")
	ErrConnectionLost  = errf("game connection lost")
	ErrNoLastScan      = errf("no previous scan, run a scan first")
	ErrAIDisabled      = errf("AI review is disabled")
	ErrInvalidNickname = errf("send a single short nickname")
	ErrRequestInFlight = errf("another protocol request is in flight")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// ConfigError reports a rule file that could not be used. The loader recovers
// from it with a default rule set; the error is informational.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rules config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
