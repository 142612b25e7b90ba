// Package zero provides a zerolog-backed implementation of the
// [logger.Logger] interface.
package zero

import (
	"github.com/rs/zerolog"
)

// Handler writes through a zerolog.Logger.
type Handler struct {
	logger zerolog.Logger
}

// New wraps the given zerolog.Logger.
func New(l zerolog.Logger) *Handler {
	return &Handler{logger: l}
}

func (h *Handler) Error(msg string, args ...any) {
	withFields(h.logger.Error(), args).Msg(msg)
}

func (h *Handler) Warn(msg string, args ...any) {
	withFields(h.logger.Warn(), args).Msg(msg)
}

func (h *Handler) Info(msg string, args ...any) {
	withFields(h.logger.Info(), args).Msg(msg)
}

func (h *Handler) Debug(msg string, args ...any) {
	withFields(h.logger.Debug(), args).Msg(msg)
}

// withFields folds alternating key/value args into the event. A trailing key
// with no value is logged under the "arg" field rather than dropped.
func withFields(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "arg"
		}
		e = e.Interface(key, args[i+1])
	}
	if len(args)%2 == 1 {
		e = e.Interface("arg", args[len(args)-1])
	}
	return e
}
