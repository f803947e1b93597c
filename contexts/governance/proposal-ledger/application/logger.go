package application

import "log/slog"

// ModuleName tags every log line emitted by the proposal ledger.
const ModuleName = "governance/proposal-ledger"

// ResolveLogger guarantees a non-nil logger for application/worker code paths.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
