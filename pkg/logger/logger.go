package logger

import (
	"go.uber.org/zap"
)

// New builds the process logger. Debug mode uses the human-readable
// development encoder; everything else logs structured JSON.
func New(mode string) (*zap.Logger, error) {
	if mode == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
