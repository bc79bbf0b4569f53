package cmds

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/rephrase/pkg/catalog"
)

func printAs(out io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(v)
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func NewStylesCommand(app *App) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "styles",
		Short: "List the styles the backend offers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			styles, err := catalog.NewClient(app.Settings.BackendURL, nil).Styles(cmd.Context())
			if err != nil {
				log.Warn().Err(err).Str("component", "cli").Msg("using fallback styles")
			}
			out := cmd.OutOrStdout()
			if output != "table" {
				return printAs(out, output, styles)
			}
			for _, s := range styles {
				if _, err := fmt.Fprintf(out, "%-12s %s %-14s %s\n", s.ID, s.Icon, s.Label, s.Description); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	return cmd
}

func NewModelsCommand(app *App) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models the backend offers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			models, err := catalog.NewClient(app.Settings.BackendURL, nil).Models(cmd.Context())
			if err != nil {
				log.Warn().Err(err).Str("component", "cli").Msg("using fallback models")
			}
			out := cmd.OutOrStdout()
			if output != "table" {
				return printAs(out, output, models)
			}
			for _, m := range models.Models {
				marker := " "
				if m == models.Default {
					marker = "*"
				}
				if _, err := fmt.Fprintf(out, "%s %s\n", marker, m); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	return cmd
}
