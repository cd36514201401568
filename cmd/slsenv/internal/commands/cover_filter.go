package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heroku/slstest/slsenv"
)

func (a *app) coverFilterCmd() *cobra.Command {
	var ignore []string

	cmd := &cobra.Command{
		Use:   "cover-filter [PATH...]",
		Short: "drop paths excluded from coverage",
		Long: `cover-filter prints the PATHs, or the lines of stdin without PATHs, that do
not match a coverage ignore pattern. The framework build directories are
always ignored. Cover profiles are accepted on stdin: block lines are
matched by their file name and the mode line is kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := slsenv.New(&slsenv.Config{CoveragePathIgnorePatterns: ignore}, slsenv.WithLogger(a.logger))
			cfg := env.Config()

			emit := func(line string) error {
				if line == "" {
					return nil
				}
				path := line
				if strings.HasPrefix(line, "mode:") {
					path = ""
				} else if i := strings.LastIndex(line, ".go:"); i >= 0 {
					path = line[:i+3]
				}
				if path != "" && cfg.CoverageIgnored(path) {
					return nil
				}
				_, err := fmt.Fprintln(a.out, line)
				return err
			}

			if len(args) > 0 {
				for _, p := range args {
					if err := emit(p); err != nil {
						return err
					}
				}
				return nil
			}

			sc := bufio.NewScanner(a.in)
			for sc.Scan() {
				if err := emit(sc.Text()); err != nil {
					return err
				}
			}
			return sc.Err()
		},
	}
	cmd.Flags().StringSliceVar(&ignore, "ignore", nil, "coverage ignore pattern, may be repeated (default vendor)")
	return cmd
}
