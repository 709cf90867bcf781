// Copyright The Notary Project Authors.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log carries a Logger through context.Context for the signing,
// extension and counter-signing operations.
//
// Callers that want diagnostics put a Logger in the context with WithLogger.
// github.com/uber-go/zap.SugaredLogger and github.com/sirupsen/logrus.Logger
// both satisfy the interface.
package log

import (
	"context"
	"fmt"
)

type contextKey struct{}

// Discard logs nothing. It is returned by GetLogger when the context carries
// no Logger.
var Discard Logger = discardLogger{}

// Logger is the leveled logging interface used across the module.
type Logger interface {
	// Debug logs a debug level message.
	Debug(args ...any)

	// Debugf logs a debug level message with format.
	Debugf(format string, args ...any)

	// Debugln logs a debug level message. Spaces are always added between
	// operands.
	Debugln(args ...any)

	// Info logs an info level message.
	Info(args ...any)

	// Infof logs an info level message with format.
	Infof(format string, args ...any)

	// Infoln logs an info level message. Spaces are always added between
	// operands.
	Infoln(args ...any)

	// Warn logs a warn level message.
	Warn(args ...any)

	// Warnf logs a warn level message with format.
	Warnf(format string, args ...any)

	// Warnln logs a warn level message. Spaces are always added between
	// operands.
	Warnln(args ...any)

	// Error logs an error level message.
	Error(args ...any)

	// Errorf logs an error level message with format.
	Errorf(format string, args ...any)

	// Errorln logs an error level message. Spaces are always added between
	// operands.
	Errorln(args ...any)
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// GetLogger returns the Logger carried by ctx, or Discard.
func GetLogger(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextKey{}).(Logger); ok {
		return logger
	}
	return Discard
}

// WithSignature returns a copy of ctx whose Logger prefixes every message
// with the given signature identifier. Nested calls stack the prefixes so a
// counter-signature log line shows its whole path from the root signature.
func WithSignature(ctx context.Context, id string) context.Context {
	logger := GetLogger(ctx)
	if logger == Discard {
		return ctx
	}
	return WithLogger(ctx, &prefixLogger{
		base:   logger,
		prefix: fmt.Sprintf("[%s] ", id),
	})
}

// prefixLogger prepends a fixed prefix to every message of base.
type prefixLogger struct {
	base   Logger
	prefix string
}

func (l *prefixLogger) Debug(args ...any) { l.base.Debug(l.with(args)...) }
func (l *prefixLogger) Debugf(format string, args ...any) {
	l.base.Debugf(l.prefix+format, args...)
}
func (l *prefixLogger) Debugln(args ...any) { l.base.Debugln(l.withln(args)...) }
func (l *prefixLogger) Info(args ...any)    { l.base.Info(l.with(args)...) }
func (l *prefixLogger) Infof(format string, args ...any) {
	l.base.Infof(l.prefix+format, args...)
}
func (l *prefixLogger) Infoln(args ...any) { l.base.Infoln(l.withln(args)...) }
func (l *prefixLogger) Warn(args ...any)   { l.base.Warn(l.with(args)...) }
func (l *prefixLogger) Warnf(format string, args ...any) {
	l.base.Warnf(l.prefix+format, args...)
}
func (l *prefixLogger) Warnln(args ...any) { l.base.Warnln(l.withln(args)...) }
func (l *prefixLogger) Error(args ...any)  { l.base.Error(l.with(args)...) }
func (l *prefixLogger) Errorf(format string, args ...any) {
	l.base.Errorf(l.prefix+format, args...)
}
func (l *prefixLogger) Errorln(args ...any) { l.base.Errorln(l.withln(args)...) }

// with prepends the prefix for fmt.Sprint semantics, where no space is
// inserted between a string operand and its neighbour.
func (l *prefixLogger) with(args []any) []any {
	return append([]any{l.prefix}, args...)
}

// withln prepends the prefix for fmt.Sprintln semantics, where a space is
// always added; the trailing space of the prefix is dropped to avoid doubling.
func (l *prefixLogger) withln(args []any) []any {
	return append([]any{l.prefix[:len(l.prefix)-1]}, args...)
}

// discardLogger implements Logger but logs nothing.
type discardLogger struct{}

func (discardLogger) Debug(args ...any)                 {}
func (discardLogger) Debugf(format string, args ...any) {}
func (discardLogger) Debugln(args ...any)               {}
func (discardLogger) Info(args ...any)                  {}
func (discardLogger) Infof(format string, args ...any)  {}
func (discardLogger) Infoln(args ...any)                {}
func (discardLogger) Warn(args ...any)                  {}
func (discardLogger) Warnf(format string, args ...any)  {}
func (discardLogger) Warnln(args ...any)                {}
func (discardLogger) Error(args ...any)                 {}
func (discardLogger) Errorf(format string, args ...any) {}
func (discardLogger) Errorln(args ...any)               {}
