package stripe

import (
	"context"
	"fmt"

	"github.com/angelmondragon/billing-backend/pkg/logger"
)

// leveledLogger routes stripe-go's internal logging into the service logger.
type leveledLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func newLeveledLogger(ctx context.Context, logg *logger.Logger) *leveledLogger {
	return &leveledLogger{ctx: logg.WithField(context.WithoutCancel(ctx), "component", "stripe-go"), logg: logg}
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.logg.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.logg.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.logg.Warn(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.logg.Error(l.ctx, fmt.Sprintf(format, v...), nil)
}
