package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var importTimeout time.Duration

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Manage extracted evidence",
}

var evidenceImportCmd = &cobra.Command{
	Use:   "import <file|url>",
	Short: "Import extracted evidence from a YAML or JSON document",
	Long: `Import reads already extracted evidence items, validates them (text at most
5000 characters, known kind and source type), embeds them in one batch and
stores them. Invalid items are reported and skipped; items already stored
under the same id are left untouched.

Document format:
  user_id: u1
  evidence:
    - id: e1
      text: "Ran Kubernetes clusters for the payments team"
      kind: accomplishment        # accomplishment, skill_listed, trait_indicator, education, certification
      source_type: resume         # resume, story, certification, inferred
      evidence_date: 2023-04
      context: {role: SRE, company: Acme}

Example:
  claimsynth evidence import resume-evidence.yaml
  claimsynth evidence import https://example.com/evidence.json --user u1`,
	Args: cobra.ExactArgs(1),
	RunE: runEvidenceImport,
}

func init() {
	rootCmd.AddCommand(evidenceCmd)
	evidenceCmd.AddCommand(evidenceImportCmd)

	evidenceImportCmd.Flags().DurationVar(&importTimeout, "timeout", 5*time.Minute, "import timeout")
}

func runEvidenceImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), importTimeout)
	defer cancel()

	p, _, cleanup, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	// The document's user_id applies unless --user is given
	items, err := p.LoadEvidence(ctx, args[0], userID)
	if err != nil {
		return fmt.Errorf("load evidence: %w", err)
	}

	report, err := p.ImportEvidence(ctx, items)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("✓ Stored %d of %d evidence items\n", report.Stored, report.Submitted)
	if report.Duplicates > 0 {
		fmt.Printf("  %d already stored\n", report.Duplicates)
	}
	if report.Unembedded > 0 {
		fmt.Printf("  %d stored without embeddings (retried during synthesis)\n", report.Unembedded)
	}
	for _, msg := range report.Invalid {
		fmt.Fprintf(os.Stderr, "  ✗ skipped: %s\n", msg)
	}

	return nil
}
