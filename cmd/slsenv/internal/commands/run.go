package commands

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/heroku/slstest/cmdutil"
	"github.com/heroku/slstest/cmdutil/signals"
)

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run FUNCTION -- COMMAND [ARGS...]",
		Short: "run a command with the environment of a function",
		Long: `run executes COMMAND with the sandbox environment: the process environment,
every declared variable and finally the variables of FUNCTION.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return a.usage(cmd)
			}
			function, argv := args[0], args[1:]

			ctx, cancel := a.context()
			defer cancel()

			env, err := a.environment(ctx)
			if err != nil {
				return err
			}
			defer env.TearDown()

			if _, err := env.Global.ServerlessWrapper.Serverless.GetFunction(function); err != nil {
				return err
			}
			vars := env.SetEnv(function)

			c := exec.Command(argv[0], argv[1:]...)
			c.Env = toEnviron(vars)
			c.Stdin = a.in
			c.Stdout = a.out
			c.Stderr = a.errOut

			a.logger.WithFields(logrus.Fields{
				"function": function,
				"command":  argv[0],
			}).Debug("running command")

			return cmdutil.RunGroup(
				cmdutil.NewCommandServer(a.logger, c),
				signals.NewServer(a.logger, os.Interrupt, syscall.SIGTERM),
			)
		},
	}
}
