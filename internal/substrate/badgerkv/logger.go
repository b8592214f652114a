package badgerkv

import (
	"strings"

	"go.uber.org/zap"
)

// logger routes badger's printf-style logging into zap.
type logger struct {
	sugar *zap.SugaredLogger
}

func newLogger(l *zap.Logger) *logger {
	return &logger{sugar: l.Named("badger").WithOptions(zap.AddCallerSkip(2)).Sugar()}
}

func (l *logger) Errorf(s string, i ...interface{}) {
	l.sugar.Errorf(strings.TrimSpace(s), i...)
}

func (l *logger) Warningf(s string, i ...interface{}) {
	l.sugar.Warnf(strings.TrimSpace(s), i...)
}

func (l *logger) Infof(s string, i ...interface{}) {
	l.sugar.Infof(strings.TrimSpace(s), i...)
}

func (l *logger) Debugf(s string, i ...interface{}) {
	l.sugar.Debugf(strings.TrimSpace(s), i...)
}
