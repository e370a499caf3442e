// Package logx configures relaybot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An in-memory ring of recent entries for the operator panel
//   - Optional Telegram sink (min-level + rate limiting)
package logx
