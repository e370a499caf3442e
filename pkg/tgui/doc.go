// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers (action:payload)
//   - HTML escaping for ParseMode="HTML"
//   - Pagination labels and rune-safe truncation
package tgui
