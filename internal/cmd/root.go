package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Chative-core-poc-v1/text2sql/internal/core"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

var (
	envFile  string
	logLevel string

	appCfg *AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "text2sql",
	Short: "Conversational text-to-SQL analyst",
	Long: `text2sql answers natural-language questions about a relational database.
Each conversation thread is triaged, clarified when ambiguous, turned into SQL,
validated and executed through MCP SQL tools, and summarised. Thread state is
checkpointed after every step so interrupted turns can be resumed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(envFile)
		if err != nil {
			return err
		}
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logx.Init(logx.LoggerOpts{
			Environment: core.ParseEnvironment(cfg.Environment),
			Level:       level,
			Output:      cmd.ErrOrStderr(),
		})
		appCfg = cfg
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}
