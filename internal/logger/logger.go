// Package logger wraps logrus with lumberjack file rotation and exposes
// gin-middleware-friendly helpers, ported from the ambient logging stack
// this codebase has always used for its HTTP-facing surface.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var global *logrus.Logger

// Config controls rotation and verbosity of the global logger.
type Config struct {
	Level      string
	JSONFormat bool
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Initialize sets up the global logger. Safe to call once at process
// startup; subsequent calls replace the previous configuration.
func Initialize(cfg Config) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.JSONFormat {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var writers []io.Writer
	writers = append(writers, os.Stdout)
	if cfg.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	l.SetOutput(io.MultiWriter(writers...))

	global = l
	return l
}

// Get returns the global logger, initializing a sane default if
// Initialize was never called (e.g. in tests).
func Get() *logrus.Logger {
	if global == nil {
		return Initialize(Config{Level: "info"})
	}
	return global
}

// WithGame returns an entry pre-populated with the game's identifier.
func WithGame(gameID string) *logrus.Entry {
	return Get().WithField("gameId", gameID)
}

// WithMatchID returns an entry pre-populated with a matchId field, for call
// sites that talk about "matches" at the matchmaking layer rather than
// in-progress games.
func WithMatchID(matchID string) *logrus.Entry {
	return Get().WithField("matchId", matchID)
}

// WithPlayer returns an entry pre-populated with the player's identifier.
func WithPlayer(playerID string) *logrus.Entry {
	return Get().WithField("playerId", playerID)
}

// Package-level convenience wrappers over the global logger.

func Debug(args ...interface{}) { Get().Debug(args...) }
func Info(args ...interface{})  { Get().Info(args...) }
func Warn(args ...interface{})  { Get().Warn(args...) }
func Error(args ...interface{}) { Get().Error(args...) }
func Fatal(args ...interface{}) { Get().Fatal(args...) }

func Debugf(format string, args ...interface{}) { Get().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { Get().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { Get().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { Get().Errorf(format, args...) }

// GinLogger is gin middleware that logs each request through the global
// logger instead of gin's default writer.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		Get().WithFields(logrus.Fields{
			"status":   c.Writer.Status(),
			"method":   c.Request.Method,
			"path":     path,
			"duration": time.Since(start).String(),
			"clientIP": c.ClientIP(),
		}).Info("http request")
	}
}
