package commands

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/heroku/slstest/service"
)

type validationResult struct {
	Service   string   `json:"service"`
	Valid     bool     `json:"valid"`
	Functions int      `json:"functions"`
	Problems  []string `json:"problems,omitempty"`
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "validate the service definition",
		Long:  "validate resolves the variables of the service and checks the result against the service schema.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return a.usage(cmd)
			}

			var res validationResult
			ctx, cancel := a.context()
			defer cancel()

			env, err := a.environment(ctx)
			switch verr := err.(type) {
			case nil:
				defer env.TearDown()
				svc := env.Global.ServerlessWrapper.Serverless
				res = validationResult{Service: svc.Name, Valid: true, Functions: len(svc.Functions)}
			case *service.ValidationError:
				res = validationResult{Problems: verr.Problems}
			default:
				return err
			}

			if a.outputJSON {
				if err := a.displayJSON(res); err != nil {
					return err
				}
			} else if res.Valid {
				fmt.Fprintf(a.out, "%s is valid (%d functions)\n", res.Service, res.Functions)
			} else {
				for _, p := range res.Problems {
					fmt.Fprintln(a.out, p)
				}
			}

			if !res.Valid {
				return errors.Errorf("service has %d problems", len(res.Problems))
			}
			return nil
		},
	}
}
