package commands

import (
	"github.com/spf13/cobra"
)

func (a *app) envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env [FUNCTION]",
		Short: "display declared environment variables",
		Long: `env displays the provider variables merged with the variables of FUNCTION.
Without FUNCTION the variables of every function are merged in declaration
order, later functions winning.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return a.usage(cmd)
			}

			ctx, cancel := a.context()
			defer cancel()

			env, err := a.environment(ctx)
			if err != nil {
				return err
			}
			defer env.TearDown()

			svc := env.Global.ServerlessWrapper.Serverless
			names := svc.GetAllFunctions()
			if len(args) == 1 {
				if _, err := svc.GetFunction(args[0]); err != nil {
					return err
				}
				names = args
			}

			vars := make(map[string]string)
			for k, v := range svc.Provider.Environment {
				vars[k] = v
			}
			for _, name := range names {
				for k, v := range env.GetEnv(name) {
					vars[k] = v
				}
			}
			return a.displayVars(vars)
		},
	}
}
