// Package signals turns process signals into context cancellation and
// cmdutil.Servers.
package signals

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/heroku/slstest/cmdutil"
)

// WithNotifyCancel returns a sub-context of ctx which is canceled upon
// receiving any of signals.
func WithNotifyCancel(ctx context.Context, signals ...os.Signal) context.Context {
	notified := make(chan os.Signal, 1)
	return notifyContext(ctx, notified, signals...)
}

func notifyContext(ctx context.Context, notified chan os.Signal, signals ...os.Signal) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signal.Notify(notified, signals...)

	go func() {
		select {
		case <-notified:
		case <-ctx.Done():
		}
		signal.Stop(notified)
		cancel()
	}()

	return ctx
}

// NewServer returns a cmdutil.Server whose Run returns nil when any of
// signals is received or the Server is stopped.
func NewServer(logger logrus.FieldLogger, signals ...os.Signal) cmdutil.Server {
	ch := make(chan os.Signal, 1)

	return cmdutil.ServerFuncs{
		RunFunc: func() error {
			signal.Notify(ch, signals...)
			if sig := <-ch; sig != nil {
				logger.WithField("signal", sig.String()).Info("received signal")
			}
			return nil
		},
		StopFunc: func(error) {
			signal.Stop(ch)
			select {
			case ch <- nil:
			default:
			}
		},
	}
}
