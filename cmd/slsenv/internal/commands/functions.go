package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type functionInfo struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Handler string `json:"handler"`
}

func (a *app) functionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "list the functions of the service",
		Long:  "functions lists every declared function with its deployed name and handler, in declaration order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
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
			var fns []functionInfo
			for _, key := range svc.GetAllFunctions() {
				fn := svc.Functions[key]
				fns = append(fns, functionInfo{Key: key, Name: fn.Name, Handler: fn.Handler})
			}

			if a.outputJSON {
				if fns == nil {
					fns = []functionInfo{}
				}
				return a.displayJSON(fns)
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FUNCTION\tNAME\tHANDLER")
			for _, fn := range fns {
				fmt.Fprintf(w, "%s\t%s\t%s\n", fn.Key, fn.Name, fn.Handler)
			}
			return w.Flush()
		},
	}
}
