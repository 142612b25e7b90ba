// Package logger defines the logging interface consumed by the client core,
// along with a default implementation backed by log/slog.
//
// The core never logs through a concrete logger type, so applications can
// plug in whatever structured logging backend they already use. See the
// [github.com/quilldb/quill.go/pkg/logger/zero] package for a zerolog-backed
// implementation.
package logger

import (
	"log/slog"
)

// Logger accepts a message followed by alternating key/value args,
// the way slog does.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

// SlogHandler adapts a slog.Handler to the Logger interface.
type SlogHandler struct {
	logger *slog.Logger
}

// New returns a Logger that writes through the given slog handler.
func New(h slog.Handler) *SlogHandler {
	return &SlogHandler{logger: slog.New(h)}
}

func (handler *SlogHandler) Error(msg string, args ...any) {
	handler.logger.Error(msg, args...)
}

func (handler *SlogHandler) Warn(msg string, args ...any) {
	handler.logger.Warn(msg, args...)
}

func (handler *SlogHandler) Info(msg string, args ...any) {
	handler.logger.Info(msg, args...)
}

func (handler *SlogHandler) Debug(msg string, args ...any) {
	handler.logger.Debug(msg, args...)
}
