// Package logging is the structured logger every poapgate component takes.
// SlogLogger backs it with log/slog.
package logging

import "context"

// Logger takes a message plus alternating key/value pairs:
//
//	log.Info(ctx, "vote recorded", "proposal_id", id, "voter", addr)
//
// Intent outcomes that leave the mirror and the ledger out of step are
// logged at Error.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a logger that adds args to every record.
	With(args ...any) Logger
}
