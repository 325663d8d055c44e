// Package cli implements the pdfrag command line.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pdfrag/internal/answer"
	"pdfrag/internal/config"
	"pdfrag/internal/domain"
	"pdfrag/internal/logging"
	"pdfrag/internal/service"
)

var (
	cfgPath string
	pdfPath string
	query   string
	keyPath string
	verbose bool
)

// newService is replaced in tests.
var newService = Build

var rootCmd = &cobra.Command{
	Use:   "pdfrag",
	Short: "Ask questions about a PDF's text and figures",
	Long: `pdfrag indexes the text and images of a PDF into a multimodal
embedding space and answers questions about it with a generative model.

  pdfrag --pdf paper.pdf                  index a document
  pdfrag --pdf paper.pdf --query "..."    index, then ask
  pdfrag --query "..."                    ask the saved index
  pdfrag chat                             interactive session`,
	SilenceUsage: true,
	RunE:         runRoot,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/pdfrag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&pdfPath, "pdf", "", "PDF file to process")
	rootCmd.PersistentFlags().StringVar(&keyPath, "key", "", "Google Cloud service-account key file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVarP(&query, "query", "q", "", "question to ask about the document")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func runRoot(cmd *cobra.Command, _ []string) error {
	if pdfPath == "" && query == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Please provide either a PDF file to process (--pdf) or a question to ask (--query).")
		return nil
	}

	ctx := commandContext(cmd)
	cfg, svc, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	if pdfPath != "" {
		if err := index(ctx, cmd, svc); err != nil {
			return err
		}
		if query == "" {
			return nil
		}
	}

	a, err := svc.Ask(ctx, query)
	if errors.Is(err, domain.ErrNoIndex) {
		return fmt.Errorf("no index found at %s; process a PDF first (--pdf)", cfg.Paths.IndexPath)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer.Render(a))
	return nil
}

func setup(ctx context.Context, cmd *cobra.Command) (*config.AppConfig, *service.Service, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if keyPath != "" {
		cfg.Project.KeyPath = keyPath
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	log := logging.New(cmd.ErrOrStderr(), cfg.Log.Level)
	svc, err := newService(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, svc, nil
}

func index(ctx context.Context, cmd *cobra.Command, svc *service.Service) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Extracting content from the document...")
	report, err := svc.IndexDocument(ctx, pdfPath)
	if err != nil {
		return fmt.Errorf("process %s: %w", pdfPath, err)
	}
	fmt.Fprintf(out, "Extracted %d text chunks and %d images\n", report.TextItems, report.ImageItems)
	fmt.Fprintf(out, "Embedded %d items, skipped %d\n", report.Embedded, len(report.Failures))
	fmt.Fprintf(out, "Index saved to %s\n", report.Location)
	if report.Summary != "" {
		fmt.Fprintf(out, "\nSummary:\n%s\n", report.Summary)
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
