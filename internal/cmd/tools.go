package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/Chative-core-poc-v1/text2sql/internal/sqltools"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

var (
	toolsTransport string
	toolsAddr      string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Run the read-only SQL tools as an MCP server",
}

var toolsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve list_tables, validate_sql and execute_sql over stdio or HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := appCfg.SQLTools.Open(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		s := sqltools.NewServer(db, appCfg.SQLTools)
		switch toolsTransport {
		case TransportStdio:
			logx.Info().Str("driver", appCfg.SQLTools.Driver).Msg("Serving SQL tools on stdio")
			return server.ServeStdio(s)
		case TransportHTTP:
			return serveHTTP(ctx, server.NewStreamableHTTPServer(s))
		default:
			return fmt.Errorf("unknown transport %q", toolsTransport)
		}
	},
}

func serveHTTP(ctx context.Context, hs *server.StreamableHTTPServer) error {
	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", toolsAddr).Msg("Serving SQL tools on streamable HTTP")
		errCh <- hs.Start(toolsAddr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsServeCmd)
	toolsServeCmd.Flags().StringVar(&toolsTransport, "transport", TransportStdio, "stdio or http")
	toolsServeCmd.Flags().StringVar(&toolsAddr, "addr", ":8090", "listen address for the http transport")
}
