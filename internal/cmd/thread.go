package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <thread>",
	Short: "Continue a turn that was interrupted between steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openStorage(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.Close()

		o, err := a.orchestrator(ctx)
		if err != nil {
			return err
		}
		defer o.Wait()

		res, err := o.Resume(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "status: %s, next: %s\n", res.Status, res.Next)
		if res.Reply != "" {
			fmt.Fprintln(cmd.OutOrStdout(), res.Reply)
		}
		return nil
	},
}

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Inspect or forget conversation threads",
}

var threadShowCmd = &cobra.Command{
	Use:   "show <thread>",
	Short: "Print the stored checkpoint of a thread as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openStorage(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.Close()

		cp, err := a.checkpoints.Load(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cp)
	},
}

var threadResetCmd = &cobra.Command{
	Use:   "reset <thread>",
	Short: "Delete a thread's checkpoint and history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openStorage(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.checkpoints.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "thread %s reset\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd, threadCmd)
	threadCmd.AddCommand(threadShowCmd, threadResetCmd)
}
