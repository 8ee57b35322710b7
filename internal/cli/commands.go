package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/schema/openapi"
)

func newSchemaCmd(a *app) *cobra.Command {
	var asOpenAPI bool
	cmd := &cobra.Command{
		Use:   "schema <ref>",
		Short: "Describe a settings class",
		Long: `Print the field descriptors of a settings class, or its OpenAPI
request schema with --openapi. The reference is an identity or short name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []settings.Option
			if asOpenAPI {
				extra = append(extra, openapi.Option())
			}
			manager, err := a.manager(extra...)
			if err != nil {
				return err
			}
			doc, err := manager.Describe(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc.Document)
		},
	}
	cmd.Flags().BoolVar(&asOpenAPI, "openapi", false, "print an OpenAPI document")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "get <ref>",
		Short: "Print stored values with defaults applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, inst, err := a.load(cmd.Context(), args[0], key)
			if err != nil {
				return err
			}
			return a.printValues(cmd.OutOrStdout(), inst)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "instance key")
	return cmd
}

func newSetCmd(a *app) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "set <ref> name=value...",
		Short: "Assign parameters and save",
		Long: `Assign one or more parameters by name and save the result. Values are
read as YAML scalars or flow sequences and converted through the parameter
type, so "30s", "25", "true", "[a, b]" and "null" all work.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			manager, uow, inst, err := a.load(ctx, args[0], key)
			if err != nil {
				return err
			}
			for _, assignment := range args[1:] {
				if err := assign(manager.Registry(), inst, assignment); err != nil {
					return err
				}
			}
			if err := uow.Save(ctx, inst); err != nil {
				return err
			}
			return a.printValues(cmd.OutOrStdout(), inst)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "instance key")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "reset <ref>",
		Short: "Restore defaults and save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, uow, inst, err := a.load(ctx, args[0], key)
			if err != nil {
				return err
			}
			if err := uow.Reset(ctx, inst); err != nil {
				return err
			}
			if err := uow.Save(ctx, inst); err != nil {
				return err
			}
			return a.printValues(cmd.OutOrStdout(), inst)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "instance key")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List declared settings classes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := a.manager()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, identity := range manager.Identities() {
				schema, err := manager.Schema(identity)
				if err != nil {
					return err
				}
				version := "-"
				if v, ok := schema.Version(); ok {
					version = fmt.Sprintf("v%d", v)
				}
				printf(out, "%s\t%s\t%s\n", schema.ShortName(), identity, version)
			}
			return nil
		},
	}
}

// assign parses one name=value pair and sets it on inst.
func assign(registry *settings.Registry, inst *settings.Instance, pair string) error {
	name, raw, ok := strings.Cut(pair, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("%w: expected name=value, got %q", ErrInvalidInput, pair)
	}
	param, ok := inst.Schema().Parameter(name)
	if !ok {
		return fmt.Errorf("%w: %q has no parameter %q", ErrInvalidInput, inst.Schema().Identity(), name)
	}
	value, err := parseValue(raw)
	if err != nil {
		return err
	}
	typed, err := registry.Denormalize(inst.Schema(), param, value)
	if err != nil {
		return err
	}
	return inst.Set(name, typed)
}

// parseValue reads raw as YAML and normalizes the result. Text that is not
// valid YAML is taken literally.
func parseValue(raw string) (any, error) {
	var decoded any
	if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
		decoded = raw
	}
	if decoded == nil && strings.TrimSpace(raw) != "null" && strings.TrimSpace(raw) != "~" {
		decoded = raw
	}
	return settings.NormalizeValue(decoded)
}
