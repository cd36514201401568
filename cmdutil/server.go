// Package cmdutil holds process plumbing shared by the slsenv commands.
package cmdutil

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// A Server runs until it completes or is stopped. Servers are run
// together with oklog/run.Group.
type Server interface {
	Run() error
	Stop(error)
}

// ServerFuncs implements Server with provided functions.
type ServerFuncs struct {
	RunFunc  func() error
	StopFunc func(error)
}

// Run calls RunFunc.
func (sf ServerFuncs) Run() error {
	return sf.RunFunc()
}

// Stop calls StopFunc, if it's non-nil.
func (sf ServerFuncs) Stop(err error) {
	if sf.StopFunc != nil {
		sf.StopFunc(err)
	}
}

// NewContextServer returns a Server that runs fn with a context that is
// canceled when the Server is stopped.
func NewContextServer(fn func(context.Context) error) Server {
	ctx, cancel := context.WithCancel(context.Background())

	return ServerFuncs{
		RunFunc: func() error {
			return fn(ctx)
		},
		StopFunc: func(error) {
			cancel()
		},
	}
}

// NewCommandServer returns a Server that starts cmd and waits for it to
// exit. Stopping the Server before the command exits sends it SIGTERM.
func NewCommandServer(logger logrus.FieldLogger, cmd *exec.Cmd) Server {
	started := make(chan struct{})
	exited := make(chan struct{})

	return ServerFuncs{
		RunFunc: func() error {
			defer close(exited)

			err := cmd.Start()
			close(started)
			if err != nil {
				return errors.Wrapf(err, "starting %s", cmd.Path)
			}
			logger.WithField("pid", cmd.Process.Pid).Debug("command started")

			return cmd.Wait()
		},
		StopFunc: func(error) {
			select {
			case <-started:
			case <-exited:
				return
			}
			if cmd.Process == nil {
				return
			}
			select {
			case <-exited:
			default:
				if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && err != os.ErrProcessDone {
					logger.WithError(err).Warn("stopping command")
				}
			}
		},
	}
}

// RunGroup runs srvs until the first of them returns, stops the rest and
// returns the first error.
func RunGroup(srvs ...Server) error {
	var g run.Group
	for _, srv := range srvs {
		g.Add(srv.Run, srv.Stop)
	}
	return g.Run()
}
