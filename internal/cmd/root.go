package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/piper/internal/config"
	"github.com/Iron-Ham/piper/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:   "piper",
	Short: "Run process pipelines without a shell",
	Long: `Piper spawns a chain of commands, connects the stdout of each stage to the
stdin of the next, and reports the merged stderr and the exit status of the
last stage. Stages that fail to start are skipped and the chain reconnects
around them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitCodeError carries a stage's non-zero exit status out of a command.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the root command. Errors other than an exit status or an
// interrupt are printed to stderr.
func Execute() error {
	err := rootCmd.Execute()
	printError(os.Stderr, err)
	return err
}

func printError(w io.Writer, err error) {
	var exitErr *ExitCodeError
	if err == nil || errors.As(err, &exitErr) || errors.Is(err, errors.ErrCanceled) {
		return
	}
	fmt.Fprintln(w, "Error:", err)
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, errors.ErrCanceled) {
		return exitInterrupted
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/piper/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/piper")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PIPER")
	// e.g., PIPER_PIPELINE_ERROR_BUFFER for pipeline.error_buffer
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
