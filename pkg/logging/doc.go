// Package logging provides subsystem-tagged, leveled logging for integrate.
//
// It is a thin layer over log/slog. Every entry carries a "subsystem"
// attribute so output from the OAuth engine, the transport session and the
// client facade can be filtered independently.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("OAuth", "Registered provider %s", id)
//	logging.Debug("Transport", "Sending request id=%d method=%s", id, method)
//	logging.Error("Server", err, "Listener stopped")
//
// JSON output is available through Init with FormatJSON, which is what the
// serve command uses when running behind a log collector.
//
// # Secrets
//
// Tokens, state values and session tokens must never be logged in full.
// Pass them through TruncateSecret first.
//
// Until Init is called only Error entries are emitted (through slog's default
// logger), so the packages stay quiet when embedded as a library.
package logging
