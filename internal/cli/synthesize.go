package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var synthTimeout time.Duration

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize",
	Short: "Turn pending evidence into claims",
	Long: `Synthesize processes the user's evidence that is not linked to any claim yet.
Evidence is handled in batches; each item either links to an existing claim or
creates a new one, and every changed claim gets its confidence recomputed from
its complete evidence set.

Example:
  claimsynth synthesize --user u1
  claimsynth synthesize --user u1 --json`,
	Args: cobra.NoArgs,
	RunE: runSynthesize,
}

func init() {
	rootCmd.AddCommand(synthesizeCmd)

	synthesizeCmd.Flags().DurationVar(&synthTimeout, "timeout", 30*time.Minute, "synthesis timeout")
	synthesizeCmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	user, err := resolveUser()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), synthTimeout)
	defer cancel()

	p, _, cleanup, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := p.Synthesize(ctx, user)
	if err != nil && report == nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	if asJSON {
		if jsonErr := printJSON(report); jsonErr != nil {
			return jsonErr
		}
		return err
	}

	if report.Evidence == 0 {
		fmt.Println("No pending evidence.")
		return err
	}

	fmt.Printf("✓ Processed %d evidence items in %d batches\n", report.Evidence, report.Batches)
	fmt.Printf("  Claims created:    %d\n", report.ClaimsCreated)
	fmt.Printf("  Claims updated:    %d\n", report.ClaimsUpdated)
	fmt.Printf("  Links created:     %d\n", report.LinksCreated)
	fmt.Printf("  Recalculated:      %d\n", report.Recalculated)
	if report.SkippedEvidence > 0 {
		fmt.Printf("  Skipped evidence:  %d\n", report.SkippedEvidence)
	}
	if report.FailedBatches > 0 {
		fmt.Printf("  ⚠️  Failed batches: %d (their evidence stays pending)\n", report.FailedBatches)
	}
	if report.DroppedDecisions > 0 {
		fmt.Printf("  ⚠️  Dropped decisions: %d\n", report.DroppedDecisions)
	}

	return err
}
