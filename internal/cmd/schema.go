package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Chative-core-poc-v1/text2sql/internal/sqltools"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

var (
	schemaClear  bool
	schemaFromDB bool
	schemaLimit  int
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the schema documentation index used for SQL generation",
}

var schemaIndexCmd = &cobra.Command{
	Use:   "index [file...]",
	Short: "Add schema documents to the search index",
	Long: `Index schema documentation files, one document per file titled by its base
name. With --from-db every table of the analysed database is indexed as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !schemaFromDB && !schemaClear {
			return fmt.Errorf("nothing to index: pass files or --from-db")
		}
		ctx := cmd.Context()
		a, err := openStorage(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if schemaClear {
			if err := a.schemaIndex.Clear(ctx); err != nil {
				return err
			}
		}

		for _, path := range args {
			b, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if err := a.schemaIndex.Add(ctx, title, string(b)); err != nil {
				return fmt.Errorf("index %s: %w", path, err)
			}
		}

		if schemaFromDB {
			warehouse, err := appCfg.SQLTools.Open(ctx)
			if err != nil {
				return err
			}
			defer warehouse.Close()

			lines, err := sqltools.Tables(ctx, warehouse, appCfg.SQLTools.Driver)
			if err != nil {
				return err
			}
			for _, line := range lines {
				title, _, _ := strings.Cut(line, "(")
				if err := a.schemaIndex.Add(ctx, title, line); err != nil {
					return fmt.Errorf("index table %s: %w", title, err)
				}
			}
		}

		n, err := a.schemaIndex.Count(ctx)
		if err != nil {
			return err
		}
		logx.Info().Int("documents", n).Msg("Schema index updated")
		fmt.Fprintf(cmd.OutOrStdout(), "%d documents indexed\n", n)
		return nil
	},
}

var schemaSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the schema documents retrieved for a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openStorage(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.schemaIndex.SearchSchema(ctx, strings.Join(args, " "), schemaLimit)
		if err != nil {
			return err
		}
		for i, d := range docs {
			if i > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "---")
			}
			fmt.Fprintln(cmd.OutOrStdout(), d)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaIndexCmd, schemaSearchCmd)
	schemaIndexCmd.Flags().BoolVar(&schemaClear, "clear", false, "drop all indexed documents first")
	schemaIndexCmd.Flags().BoolVar(&schemaFromDB, "from-db", false, "index the tables of the analysed database")
	schemaSearchCmd.Flags().IntVarP(&schemaLimit, "limit", "n", 2, "maximum documents to return")
}
