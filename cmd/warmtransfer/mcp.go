package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/warmtransfer/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes sessions and transfers as MCP tools, so an assistant can drive a warm
transfer on behalf of an agent.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")

		// Logs go to stderr so they never corrupt JSON-RPC on stdout.
		log.SetOutput(os.Stderr)
		a, err := loadApp(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			if err := a.svc.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("Sweeper stopped", "err", err)
			}
		}()

		srv := mcp.NewServer(a.svc, a.logger.With("component", "mcp"))
		switch transport {
		case "stdio":
			a.logger.Info("Starting Warm Transfer MCP Server (Stdio)...")
			return srv.ServeStdio()
		case "sse":
			baseURL, _ := cmd.Flags().GetString("base-url")
			if baseURL == "" {
				baseURL = "http://localhost" + addr
			}
			return srv.ServeSSE(ctx, addr, baseURL)
		default:
			return fmt.Errorf("unknown transport %q (want stdio or sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringP("transport", "t", "stdio", "Transport: stdio or sse")
	mcpCmd.Flags().String("addr", ":8001", "Listen address for the sse transport")
	mcpCmd.Flags().String("base-url", "", "Public base URL for the sse transport")
}
