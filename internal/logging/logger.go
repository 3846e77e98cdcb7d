// Package logging configures zerolog for the MintFlip binaries and carries
// per-request fields (request id, wallet) through a context.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	walletKey
)

// Config selects the level, encoding and destination of log output.
type Config struct {
	Level   string // debug, info, warn, error; anything else means info
	Format  string // json or text
	Output  io.Writer
	Service string
}

// Logger is the process logger built from a Config.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger. Text output is colorless when it is not a terminal.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.Format, "text") {
		_, isFile := out.(*os.File)
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: !isFile}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	return &Logger{zl: ctx.Logger()}
}

// SetGlobalLogger makes l the logger behind zerolog's package-level log.
func SetGlobalLogger(l *Logger) {
	log.Logger = l.zl
	zerolog.SetGlobalLevel(l.zl.GetLevel())
}

func (l *Logger) Info(msg string) {
	l.zl.Info().Msg(msg)
}

func (l *Logger) Error(err error, msg string) {
	l.zl.Error().Err(err).Msg(msg)
}

// Fatal logs and exits with status 1.
func (l *Logger) Fatal(err error, msg string) {
	l.zl.Fatal().Err(err).Msg(msg)
}

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithWallet returns a copy of ctx carrying the authenticated wallet.
func WithWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, walletKey, wallet)
}

// Wallet returns the wallet stored in ctx, or "".
func Wallet(ctx context.Context) string {
	wallet, _ := ctx.Value(walletKey).(string)
	return wallet
}

// WithContext returns the global logger annotated with the request id and
// wallet found in ctx.
func WithContext(ctx context.Context) *zerolog.Logger {
	lc := log.With()
	if id := RequestID(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	if wallet := Wallet(ctx); wallet != "" {
		lc = lc.Str("wallet", wallet)
	}
	l := lc.Logger()
	return &l
}
