package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"editormcp/internal/app"
	"editormcp/internal/domain"
	"editormcp/internal/tools"
)

func newToolsCmd(opts *cliOptions) *cobra.Command {
	var category string
	var all bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the server would register",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context(), opts, cmd.Flags())
			if err != nil {
				return err
			}
			reg := app.BuildCatalog(cfg, opts.logger)

			tier := cfg.Tier
			if all {
				tier = domain.TierEnterprise
			}
			defs := reg.List(category, tier)
			if opts.jsonOutput {
				entries := make([]domain.ToolSummary, 0, len(defs))
				for _, def := range defs {
					entries = append(entries, def.Summary())
				}
				return writeJSON(map[string]any{
					"tier":       cfg.Tier.String(),
					"tools":      entries,
					"duplicates": reg.Duplicates(),
				})
			}
			fmt.Printf("tier=%s tools=%d\n", cfg.Tier, len(defs))
			for _, def := range defs {
				fmt.Printf("%-28s %-14s %-10s %s\n", def.ID, def.Category, def.MinTier, def.SafetyLevel)
			}
			for _, dup := range reg.Duplicates() {
				fmt.Printf("duplicate %s registered %d times by %s\n", dup.ID, dup.Count, strings.Join(dup.Sources, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only list tools in this category")
	cmd.Flags().BoolVar(&all, "all", false, "include tools above the configured tier")
	return cmd
}

func newDescribeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <tool-id>",
		Short: "Print the full definition of a tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), opts, cmd.Flags())
			if err != nil {
				return err
			}
			reg := app.BuildCatalog(cfg, opts.logger)
			def, err := reg.Describe(args[0])
			if err != nil {
				return exitWith(2, err.Error())
			}
			return writeJSON(tools.DescribeDefinition(def))
		},
	}
}
