package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"integrate/internal/config"
	"integrate/internal/transport"
	"integrate/pkg/logging"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfig indicates invalid configuration.
	ExitCodeConfig = 2
	// ExitCodeConnection indicates the tool server could not be reached.
	ExitCodeConnection = 3
)

var (
	configPath string
	debug      bool
	logFormat  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "integrate",
	Short: "Connect apps to third-party tools through OAuth and MCP",
	Long: `integrate runs the OAuth flows that connect users to third-party
providers and calls the tools those providers expose through an MCP tool
server.

Use 'integrate serve' to host the OAuth endpoints and 'integrate tools' to
list or call tools from the command line.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application, called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "integrate version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps an error to a semantic exit code for scripting.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var cfgErrs config.ConfigurationErrorCollection
	var cfgErr config.ConfigurationError
	if errors.As(err, &cfgErrs) || errors.As(err, &cfgErr) {
		return ExitCodeConfig
	}

	var connErr *transport.ConnectionError
	if errors.As(err, &connErr) {
		return ExitCodeConnection
	}

	return ExitCodeError
}

// loadConfig loads the configuration selected by --config-path and sets up
// logging from it. --debug overrides the configured level.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return config.Config{}, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if debug {
		level = logging.LevelDebug
	}
	format := logging.Format(cfg.Logging.Format)
	if logFormat != "" {
		format = logging.Format(logFormat)
	}
	logging.Init(level, format, os.Stderr)

	return cfg, nil
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newToolsCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default ~/.config/integrate)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (default from config)")
}
