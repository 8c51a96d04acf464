package logger

import (
	"go.uber.org/zap"
)

// ForSession returns a child logger tagged with the call identity.
// The caller phone is masked.
func ForSession(base *zap.Logger, callID, channel, phone string) *zap.Logger {
	if base == nil {
		base = Log
	}
	return base.With(
		zap.String("call_id", callID),
		zap.String("channel", channel),
		MaskPhoneIfPresent("caller", phone),
	)
}
