// Package cli implements settingsctl, a command-line front end that loads a
// settings manifest and reads or writes values kept in a file store.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/logging"
	"github.com/goliatone/go-settings/pkg/manifest"
	"github.com/goliatone/go-settings/pkg/storage/file"
)

// app carries the resolved flags and logger to the subcommands.
type app struct {
	flags  *GlobalFlags
	logger zerolog.Logger
}

// NewRootCommand builds the settingsctl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{flags: &GlobalFlags{}, logger: zerolog.Nop()}
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "settingsctl",
		Short: "Inspect and edit settings declared in a manifest",
		Long: `settingsctl loads a settings manifest and operates on the values stored
for it under a directory, one document per settings class.

Flags can also be set through SETTINGSCTL_* environment variables
(e.g. SETTINGSCTL_STORE_DIR) or a config file passed with --config.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := BindGlobalFlags(v, cmd, a.flags); err != nil {
				return err
			}
			logger, err := InitLogger(a.flags.LogLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	AddGlobalFlags(cmd, a.flags)
	cmd.AddCommand(
		newSchemaCmd(a),
		newGetCmd(a),
		newSetCmd(a),
		newResetCmd(a),
		newListCmd(a),
	)
	return cmd
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// manager loads the manifest and builds a manager over the file store.
func (a *app) manager(extra ...settings.Option) (*settings.Manager, error) {
	m, err := manifest.Load(a.flags.Manifest, nil)
	if err != nil {
		return nil, err
	}
	store := file.New(a.flags.StoreDir, file.WithFormat(file.Format(a.flags.Format)))
	opts := []settings.Option{
		settings.WithDefaultAdapter(store),
		settings.WithLogger(logging.Zerolog(a.logger)),
	}
	manager, err := m.NewManager(append(opts, extra...)...)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().
		Str("manifest", a.flags.Manifest).
		Str("store_dir", a.flags.StoreDir).
		Int("schemas", len(manager.Identities())).
		Msg("manifest loaded")
	return manager, nil
}

// load resolves ref in a fresh unit of work.
func (a *app) load(ctx context.Context, ref, key string) (*settings.Manager, *settings.UnitOfWork, *settings.Instance, error) {
	manager, err := a.manager()
	if err != nil {
		return nil, nil, nil, err
	}
	uow := manager.Begin()
	inst, err := uow.GetKeyed(ctx, ref, key)
	if err != nil {
		return nil, nil, nil, err
	}
	return manager, uow, inst, nil
}

// printValues writes the normalized values of inst in the storage format.
func (a *app) printValues(w io.Writer, inst *settings.Instance) error {
	values, err := inst.Normalized()
	if err != nil {
		return err
	}
	switch file.Format(a.flags.Format) {
	case file.FormatJSON:
		return writeJSON(w, values)
	default:
		return writeYAML(w, values)
	}
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
