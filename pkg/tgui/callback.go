package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats inline callback data as "action" or "action:payload".
// Payload is kept as-is (no escaping).
func Data(action, payload string) string {
	action = strings.TrimSpace(action)
	if payload == "" {
		return action
	}
	return action + ":" + payload
}

// CheckedData is Data plus the Telegram size check.
func CheckedData(action, payload string) (string, error) {
	d := Data(action, payload)
	if len(d) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return d, nil
}

// ParseData splits "action:payload" at the first colon.
func ParseData(data string) (action, payload string) {
	data = strings.TrimSpace(data)
	action, payload, _ = strings.Cut(data, ":")
	return action, payload
}
