package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
)

var (
	askThread string
	askUser   string
	askStream bool
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send a message to a thread",
	Long: `Send one message to a conversation thread and print the analyst's reply.
Without a message argument, ask reads messages from stdin line by line on the
same thread until EOF or "exit".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askThread, "thread", "t", "", "thread id (default: a new random id)")
	askCmd.Flags().StringVarP(&askUser, "user", "u", "local", "user id for long-term memory")
	askCmd.Flags().BoolVarP(&askStream, "stream", "s", false, "print stage events and reply chunks as they arrive")
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	if askThread == "" {
		askThread = uuid.NewString()
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(cmd.ErrOrStderr(), "thread: %s\n", askThread)

	if len(args) == 1 {
		return askOnce(ctx, o, out, args[0])
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := askOnce(ctx, o, out, line); err != nil {
			// a failed turn leaves the thread usable
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		}
	}
}

func askOnce(ctx context.Context, o *graph.Orchestrator, out io.Writer, message string) error {
	in := model.TurnInput{ThreadID: askThread, UserID: askUser, Message: message}
	if !askStream {
		res, err := o.Invoke(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.Reply)
		return nil
	}

	sr, err := o.Stream(ctx, in)
	if err != nil {
		return err
	}
	defer sr.Close()
	return printEvents(out, sr)
}

type eventReader interface {
	Recv() (*model.Event, error)
}

// printEvents renders stage transitions on their own lines and reply chunks
// inline. Replies of stages that did not stream are printed on completion.
func printEvents(out io.Writer, sr eventReader) error {
	inChunk, streamed := false, false
	for {
		ev, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			if inChunk {
				fmt.Fprintln(out)
			}
			return nil
		}
		if err != nil {
			return err
		}

		if ev.Stage == model.StageLLMStream {
			fmt.Fprint(out, ev.Chunk)
			inChunk, streamed = true, true
			continue
		}
		if inChunk {
			fmt.Fprintln(out)
			inChunk = false
		}

		switch ev.Status {
		case model.EventFailed:
			return fmt.Errorf("%s", ev.Error)
		case model.EventRunning:
			streamed = false
			fmt.Fprintf(out, "[%s] running\n", ev.Stage)
		case model.EventCompleted:
			fmt.Fprintf(out, "[%s] completed\n", ev.Stage)
			// execution streams its summary but replies with the full payload
			if ev.Result != nil && (!streamed || ev.Stage == model.StageExecution) {
				for _, m := range ev.Result.Messages {
					if m != nil && m.Role == schema.Assistant {
						fmt.Fprintln(out, m.Content)
					}
				}
			}
		}
	}
}
