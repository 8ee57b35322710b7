package cli

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goliatone/go-settings/pkg/storage/file"
)

// Exit codes for the CLI.
const (
	ExitSuccess      = 0
	ExitError        = 1
	ExitInvalidInput = 2
)

// EnvPrefix prefixes the environment variables that override flags, e.g.
// SETTINGSCTL_STORE_DIR.
const EnvPrefix = "SETTINGSCTL"

// ErrInvalidInput marks errors caused by bad flags or arguments.
var ErrInvalidInput = stderrors.New("invalid input")

// GlobalFlags holds flags available to all commands.
type GlobalFlags struct {
	Config   string
	Manifest string
	StoreDir string
	Format   string
	LogLevel string
}

// AddGlobalFlags registers the persistent flags on the root command.
func AddGlobalFlags(cmd *cobra.Command, flags *GlobalFlags) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.Config, "config", "", "optional config file (yaml, json or toml)")
	pf.StringVar(&flags.Manifest, "manifest", "settings.yaml", "settings manifest")
	pf.StringVar(&flags.StoreDir, "store-dir", "./data", "directory holding stored settings")
	pf.StringVar(&flags.Format, "format", string(file.FormatYAML), "storage format (json|yaml)")
	pf.StringVar(&flags.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
}

// BindGlobalFlags binds the persistent flags to v and resolves them against
// the environment and the optional config file. Explicit flags win.
func BindGlobalFlags(v *viper.Viper, cmd *cobra.Command, flags *GlobalFlags) error {
	rootFlags := cmd.Root().PersistentFlags()
	for _, name := range []string{"manifest", "store-dir", "format", "log-level"} {
		if err := v.BindPFlag(name, rootFlags.Lookup(name)); err != nil {
			return err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags.Config != "" {
		v.SetConfigFile(flags.Config)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", flags.Config, err)
		}
	}

	flags.Manifest = v.GetString("manifest")
	flags.StoreDir = v.GetString("store-dir")
	flags.Format = strings.ToLower(v.GetString("format"))
	flags.LogLevel = v.GetString("log-level")

	switch file.Format(flags.Format) {
	case file.FormatJSON, file.FormatYAML:
	default:
		return fmt.Errorf("%w: format %q must be json or yaml", ErrInvalidInput, flags.Format)
	}
	return nil
}

// ExitCodeForError maps err to a process exit code.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if stderrors.Is(err, ErrInvalidInput) || isInvalidInputError(err.Error()) {
		return ExitInvalidInput
	}
	return ExitError
}

func isInvalidInputError(msg string) bool {
	for _, pattern := range []string{
		"unknown flag",
		"unknown shorthand flag",
		"flag needs an argument",
		"invalid argument",
		"accepts ",
		"unknown command",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
