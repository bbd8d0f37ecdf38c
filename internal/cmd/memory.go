package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
)

var (
	memoryUser  string
	memoryFile  string
	memoryLimit int
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage long-term memory: user profiles, SQL patterns and past queries",
}

var memoryProfileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Store a user profile from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		var p model.UserProfile
		if err := readYAML(memoryFile, &p); err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := openStorage(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.memory.SaveProfile(ctx, memoryUser, p); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile saved for %s\n", memoryUser)
		return nil
	},
}

var memoryPatternCmd = &cobra.Command{
	Use:     "patterns",
	Aliases: []string{"pattern"},
	Short:   "Store SQL patterns from a YAML list",
	RunE: func(cmd *cobra.Command, args []string) error {
		var patterns []model.SQLPattern
		if err := readYAML(memoryFile, &patterns); err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := openStorage(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, p := range patterns {
			if err := a.memory.SavePattern(ctx, p); err != nil {
				return fmt.Errorf("pattern %q: %w", p.PatternName, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d patterns saved\n", len(patterns))
		return nil
	},
}

var memoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print what the analyst remembers about a user as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openStorage(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var uc model.UserContext
		if uc.Profile, err = a.memory.Profile(ctx, memoryUser); err != nil {
			return err
		}
		if uc.Episodes, err = a.memory.Episodes(ctx, memoryUser, memoryLimit); err != nil {
			return err
		}
		if uc.Patterns, err = a.memory.Patterns(ctx, memoryLimit); err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(uc)
	},
}

func readYAML(path string, v any) error {
	if path == "" {
		return fmt.Errorf("--file is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryProfileCmd, memoryPatternCmd, memoryShowCmd)
	memoryCmd.PersistentFlags().StringVarP(&memoryUser, "user", "u", "local", "user id")
	memoryCmd.PersistentFlags().StringVarP(&memoryFile, "file", "f", "", "YAML input file")
	memoryShowCmd.Flags().IntVarP(&memoryLimit, "limit", "n", 10, "maximum episodes and patterns to show")
}
