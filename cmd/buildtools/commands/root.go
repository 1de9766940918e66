// Package commands is the command line interface of buildtools.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/browser-infra/buildtools/internal/actions"
	"github.com/browser-infra/buildtools/internal/cli"
	"github.com/browser-infra/buildtools/internal/constants"
	"github.com/browser-infra/buildtools/internal/deploycontent"
	"github.com/browser-infra/buildtools/internal/rusttoolchain"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	ctx    context.Context
	cancel context.CancelFunc

	// exitCode is returned on success by commands forwarding a child status.
	exitCode int
}

// appConfig holds the configuration of the application, one section per command.
type appConfig struct {
	Verbosity int  `mapstructure:"verbose"`
	JSONLogs  bool `mapstructure:"json_logs"`

	JNI        jniConfig            `mapstructure:"jni"`
	Sign       signConfig           `mapstructure:"sign"`
	PolicyDoc  policyDocConfig      `mapstructure:"policy_doc"`
	Deploy     deploycontent.Config `mapstructure:"deploy"`
	Xcode      xcodeConfig          `mapstructure:"xcode"`
	Rust       rusttoolchain.Config `mapstructure:"rust"`
	WPTResults wptResultsConfig     `mapstructure:"wpt_results"`
	WPTRun     wptRunConfig         `mapstructure:"wpt_run"`
	Actions    actions.Config       `mapstructure:"actions"`
	JSONMerge  jsonMergeConfig      `mapstructure:"jsonmerge"`
	EvalShard  evalShardConfig      `mapstructure:"eval_shard"`
}

// New registers commands and returns a new App.
func New() (*App, error) {
	a := App{viper: viper.New()}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.cmd = &cobra.Command{
		Use:   constants.CmdName + " COMMAND",
		Short: "Build infrastructure tools of the browser",
		Long: `Build infrastructure tools of the browser.

Each command drives one step of the build, signing or testing infrastructure.
Every flag can also be set in the configuration file, under the section of its command,
or through BUILDTOOLS_<SECTION>__<FLAG> environment variables.`,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs)
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs)
			slog.Debug("Got app config", "config", a.config)
			return nil
		},
	}
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	a.cmd.PersistentFlags().CountVarP(&a.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	a.cmd.PersistentFlags().BoolVar(&a.config.JSONLogs, "json-logs", false, "write logs as JSON to stderr")
	cli.InstallConfigFlag(a.cmd)
	a.bindFlags("", a.cmd.PersistentFlags())

	installJNICmd(&a)
	installSignCmd(&a)
	installPolicyDocCmd(&a)
	installDeployCmd(&a)
	installXcodeCmd(&a)
	installRustCmd(&a)
	installWPTResultsCmd(&a)
	installWPTRunCmd(&a)
	installActionsCmd(&a)
	installJSONMergeCmd(&a)
	installEvalShardCmd(&a)
	installTokenUsageCmd(&a)

	return &a, nil
}

// bindFlags binds every flag of fs to the <section>.<name> configuration key, dashes
// in names becoming underscores.
func (a *App) bindFlags(section string, fs *pflag.FlagSet) {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if section != "" {
			key = section + "." + key
		}
		err = errors.Join(err, a.viper.BindPFlag(key, f))
	})
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to bind flags of %q: %v", section, err))
	}
}

// usageError flags err as a usage error.
func (a *App) usageError(err error) error {
	a.cmd.SilenceUsage = false
	return err
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	defer a.cancel()
	return a.cmd.ExecuteContext(a.ctx)
}

// Quit cancels the running command. Child processes are killed.
func (a *App) Quit() {
	a.cancel()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// ExitCode is the status to exit with when Run succeeds.
func (a App) ExitCode() int {
	return a.exitCode
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}
