/*
NAME
        slsenv - inspect and run serverless functions with their declared
        environment

EXAMPLES
        slsenv functions                      # list the functions of ./serverless.yml
        slsenv env hello                      # show the variables hello runs with
        slsenv --stage prod validate          # validate the prod stage
        slsenv run hello -- go test ./...     # run a command with hello's variables
        git ls-files | slsenv cover-filter    # drop paths excluded from coverage

ENVIRONMENT
        SLSENV_CWD, SLSENV_STAGE and SLSENV_REGION are used when the
        matching flag is not given. LOG_LEVEL and LOG_JSON configure logging.
*/
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/heroku/slstest/cmdutil/signals"
	"github.com/heroku/slstest/cmdutil/svclog"
	"github.com/heroku/slstest/service"
	"github.com/heroku/slstest/slsenv"
)

// app is the state shared by the subcommands of one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer
	in     io.Reader

	cwd        string
	stage      string
	region     string
	outputJSON bool

	logger  logrus.FieldLogger
	sources map[string]service.Source
}

// Execute runs the root command and exits non-zero on failure. A wrapped
// command's exit status is passed through.
func Execute() {
	root := NewRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Exited() {
				os.Exit(ws.ExitStatus())
			}
		}
		fmt.Fprintln(os.Stderr, "slsenv: "+err.Error())
		os.Exit(1)
	}
}

// NewRootCmd returns the slsenv command tree.
func NewRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newApp(in, out, errOut).rootCmd()
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{in: in, out: out, errOut: errOut}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "slsenv <command> [FLAGS]",
		Short: "slsenv runs serverless functions with the environment they are deployed with.",
		Long: `slsenv loads serverless.yml, resolves its variables and exposes the
environment each function is declared with.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configureLogger()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cwd, "cwd", "", "service root directory (default $SLSENV_CWD or .)")
	flags.StringVar(&a.stage, "stage", "", "stage to resolve ${opt:stage} with (default $SLSENV_STAGE)")
	flags.StringVar(&a.region, "region", "", "region to resolve ${opt:region} with (default $SLSENV_REGION)")
	flags.BoolVar(&a.outputJSON, "json", false, "output in JSON format")

	root.AddCommand(a.functionsCmd())
	root.AddCommand(a.envCmd())
	root.AddCommand(a.validateCmd())
	root.AddCommand(a.runCmd())
	root.AddCommand(a.coverFilterCmd())

	return root
}

func (a *app) configureLogger() error {
	if a.logger != nil {
		return nil
	}

	var cfg svclog.Config
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return err
	}
	cfg.Stage = a.stage
	cfg.Output = a.errOut
	a.logger = svclog.NewLogger(cfg)
	return nil
}

func (a *app) config() (*slsenv.Config, error) {
	cfg, err := slsenv.LoadConfig()
	if err != nil {
		return nil, err
	}
	if a.cwd != "" {
		cfg.Cwd = a.cwd
	}
	if a.stage != "" {
		cfg.Stage = a.stage
	}
	if a.region != "" {
		cfg.Region = a.region
	}
	return cfg, nil
}

// environment builds and sets up the sandbox for the configured service.
func (a *app) environment(ctx context.Context) (*slsenv.Environment, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	env := slsenv.New(cfg, slsenv.WithLogger(a.logger), slsenv.WithSources(a.sources))
	if err := env.Setup(ctx); err != nil {
		return nil, err
	}
	return env, nil
}

// context is canceled on SIGINT, SIGTERM or when cancel is called. Callers
// must call cancel to release the signal handler.
func (a *app) context() (context.Context, context.CancelFunc) {
	parent, cancel := context.WithCancel(context.Background())
	return signals.WithNotifyCancel(parent, os.Interrupt, syscall.SIGTERM), cancel
}

func (a *app) usage(cmd *cobra.Command) error {
	return fmt.Errorf("usage: slsenv %s", cmd.Use)
}

func (a *app) displayJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) displayVars(vars map[string]string) error {
	if a.outputJSON {
		return a.displayJSON(vars)
	}

	for _, k := range sortedKeys(vars) {
		v := vars[k]
		if strings.ContainsAny(v, "\n \t'\"$") {
			v = "'" + strings.Replace(v, "'", `'\''`, -1) + "'"
		}
		if _, err := fmt.Fprintf(a.out, "%s=%s\n", k, v); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toEnviron(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for _, k := range sortedKeys(env) {
		result = append(result, k+"="+env[k])
	}
	return result
}
