package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nao1215/toxguard/internal/controller"
	"github.com/nao1215/toxguard/internal/transport"
	"github.com/spf13/cobra"
)

// NewPopupCmd creates the popup command.
func NewPopupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "popup",
		Short: "Show and control the scan of the active tab",
		Long: `Popup connects to "toxguard serve" and shows the scan of the active tab.

Keys:
  r          run a scan          c          cancel the scan
  n, →       next match          p, ←       previous match
  1-9        jump to a match     g          refresh
  q          quit

Examples:
  # Connect to the default address
  toxguard popup

  # Print the status once, for scripts
  toxguard popup --once --address 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: runPopupCmd,
	}

	cmd.Flags().StringP("address", "a", "",
		"Address of the serving host (default: the configured listen address)")
	cmd.Flags().Bool("once", false,
		"Print the status of the active tab and exit")

	return cmd
}

func runPopupCmd(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(cmd, cmd.ErrOrStderr())
	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	cfg, err := buildConfig(ctx, cmd, nil)
	if err != nil {
		return err
	}
	addr, err := cmd.Flags().GetString("address")
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.ListenAddress
	}
	once, err := cmd.Flags().GetBool("once")
	if err != nil {
		return err
	}

	client, err := transport.Dial(ctx, websocketURL(addr), transport.WithClientLogger(logger))
	if err != nil {
		return err
	}
	defer client.Close()

	ctrl := controller.New(client, controller.WithLogger(logger))
	if once {
		return printStatus(ctx, ctrl, cmd.OutOrStdout())
	}

	p := tea.NewProgram(controller.NewModel(ctrl, client.Broadcasts()),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("popup failed: %w", err)
	}
	if m, ok := final.(controller.Model); ok && m.Disconnected() {
		return fmt.Errorf("connection to %s closed", addr)
	}
	return nil
}

// websocketURL accepts host:port as well as a full ws:// URL.
func websocketURL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + addr + websocketPath
}

// printStatus writes the popup contents as plain lines.
func printStatus(ctx context.Context, ctrl *controller.Controller, w io.Writer) error {
	v, err := ctrl.Refresh(ctx)
	if err != nil {
		return err
	}
	if v.Note != "" {
		fmt.Fprintln(w, v.Note)
		return nil
	}
	fmt.Fprintf(w, "tab:   %d\n", v.TabID)
	if v.Status != nil {
		fmt.Fprintf(w, "url:   %s\n", v.Status.URL)
	}
	fmt.Fprintf(w, "state: %s\n", v.State)
	fmt.Fprintf(w, "scan:  %s\n", v.Counts())
	fmt.Fprintf(w, "found: %s\n", v.Hits())
	return nil
}
