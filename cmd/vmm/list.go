package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calebstewart/vmm/internal/lifecycle"
	"github.com/calebstewart/vmm/internal/output"
	"github.com/calebstewart/vmm/internal/registry"
)

var (
	outputFormat string
	noHeaders    bool
)

func init() {
	listCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, yaml, json)")
	listCmd.Flags().BoolVar(&noHeaders, "no-headers", false, "omit headers in table output")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List domains with their folders and labels",
	Long: `List every libvirt domain with its lifecycle state and organization
overlay.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   YAML document stream
  -o json   JSON array`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Validate output format
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client, err := connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
			}
		}()

		reg, err := registry.Load(client.Libvirt())
		if err != nil {
			return fmt.Errorf("failed to load domains: %w", err)
		}

		rows := make([]output.Row, 0, reg.Len())
		for _, d := range reg.Domains() {
			state := "unknown"
			if s, err := lifecycle.Classify(client.Libvirt(), d.Handle()); err == nil {
				state = string(s)
			}

			rows = append(rows, output.Row{
				Name:   d.Name,
				UUID:   d.UUID.String(),
				State:  state,
				Path:   d.Meta.Path,
				Labels: d.Meta.Labels,
			})
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatDomainList(rows)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}
