package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/warmtransfer/internal/presentation/tui"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/spf13/cobra"
)

// apiClient is a thin reader over a running server's HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(cmd *cobra.Command) *apiClient {
	server, _ := cmd.Flags().GetString("server")
	return &apiClient{
		base: strings.TrimRight(server, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Detail string `json:"detail"`
			Kind   string `json:"kind"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Detail != "" {
			return fmt.Errorf("%s: %s", e.Kind, e.Detail)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func render(cmd *cobra.Command, markdown string) error {
	out, err := tui.NewRenderer(cmd.OutOrStdout())(markdown)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Inspect sessions on a running server",
}

var roomsListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Rooms map[string]domain.Session `json:"rooms"`
		}
		if err := newAPIClient(cmd).get(cmd.Context(), "/api/rooms", &resp); err != nil {
			return err
		}
		sessions := make([]domain.Session, 0, len(resp.Rooms))
		for _, s := range resp.Rooms {
			sessions = append(sessions, s)
		}
		slices.SortFunc(sessions, func(a, b domain.Session) int { return strings.Compare(a.Name, b.Name) })
		return render(cmd, tui.SessionTable(sessions))
	},
}

var roomsShowCmd = &cobra.Command{
	Use:   "show <room_name>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Room domain.Session `json:"room"`
		}
		if err := newAPIClient(cmd).get(cmd.Context(), "/api/rooms/"+url.PathEscape(args[0]), &resp); err != nil {
			return err
		}
		return render(cmd, tui.SessionMarkdown(resp.Room))
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Inspect transfers on a running server",
}

var transferShowCmd = &cobra.Command{
	Use:   "show <transfer_id>",
	Short: "Show a transfer and its briefing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec domain.TransferRecord
		if err := newAPIClient(cmd).get(cmd.Context(), "/api/transfer/"+url.PathEscape(args[0]), &rec); err != nil {
			return err
		}
		return render(cmd, tui.TransferMarkdown(rec))
	},
}

func init() {
	for _, c := range []*cobra.Command{roomsCmd, transferCmd} {
		c.PersistentFlags().String("server", "http://localhost:8000", "Base URL of a running server")
		rootCmd.AddCommand(c)
	}
	roomsCmd.AddCommand(roomsListCmd, roomsShowCmd)
	transferCmd.AddCommand(transferShowCmd)
}
