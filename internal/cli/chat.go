package cli

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pdfrag/internal/domain"
	"pdfrag/internal/tui"
)

// runProgram is replaced in tests.
var runProgram = func(m tea.Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively",
	Long: `Open an interactive session over the saved index. With --pdf the
document is processed first.

Controls:
  Enter     - Ask
  ↑/↓       - Cycle through matches of the last answer
  Ctrl+C    - Quit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	cfg, svc, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	if pdfPath != "" {
		if err := index(ctx, cmd, svc); err != nil {
			return err
		}
	}

	info, err := svc.Load(ctx)
	if errors.Is(err, domain.ErrNoIndex) {
		return fmt.Errorf("no index found at %s; process a PDF first (--pdf)", cfg.Paths.IndexPath)
	}
	if err != nil {
		return err
	}
	return runProgram(tui.New(ctx, svc, info))
}
