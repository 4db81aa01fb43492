package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimsynth/internal/model"
)

var opportunityID string

var opportunityCmd = &cobra.Command{
	Use:   "opportunity",
	Short: "Manage job opportunities",
}

var opportunityAddCmd = &cobra.Command{
	Use:   "add <file|url>",
	Short: "Store an opportunity from a YAML or JSON document",
	Long: `Add stores a job opportunity with its classified requirements. Requirements
are plain strings (treated as skills) or {text, type} objects where type is
education, certification, skill or experience.

Document format:
  id: acme-platform
  user_id: u1
  title: Platform Engineer
  company: Acme
  requirements:
    mustHave:
      - Kubernetes
      - {text: "BSc Computer Science", type: education}
    niceToHave:
      - Go`,
	Args: cobra.ExactArgs(1),
	RunE: runOpportunityAdd,
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match the user's claims against an opportunity",
	Long: `Match scores how well the user's claims cover an opportunity's requirements.
Must-have coverage weighs 70% of the overall score. Results are computed fresh
from the current claims and never stored.

Example:
  claimsynth match --opportunity acme-platform
  claimsynth match --opportunity acme-platform --user u2 --json`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(opportunityCmd)
	opportunityCmd.AddCommand(opportunityAddCmd)
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringVarP(&opportunityID, "opportunity", "o", "", "opportunity id")
	matchCmd.Flags().BoolVar(&asJSON, "json", false, "print the match result as JSON")
	_ = matchCmd.MarkFlagRequired("opportunity")
}

func runOpportunityAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, _, cleanup, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	o, err := p.LoadOpportunity(ctx, args[0], userID)
	if err != nil {
		return fmt.Errorf("load opportunity: %w", err)
	}
	if err := p.AddOpportunity(ctx, o); err != nil {
		return fmt.Errorf("store opportunity: %w", err)
	}

	fmt.Printf("✓ Stored opportunity %s (%s)\n", o.ID, o.Title)
	fmt.Printf("  %d must-have, %d nice-to-have requirements\n", len(o.Requirements.MustHave), len(o.Requirements.NiceToHave))
	fmt.Printf("\nTo match it:\n  claimsynth match --opportunity %s\n", o.ID)
	return nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, _, cleanup, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	// Empty user matches for the opportunity's owner
	result, err := p.Match(ctx, strings.TrimSpace(userID), opportunityID)
	if err != nil {
		return fmt.Errorf("match failed: %w", err)
	}

	if asJSON {
		return printJSON(result)
	}
	printMatch(result)
	return nil
}

func printMatch(r *model.MatchResult) {
	header(fmt.Sprintf("Match %s for %s", r.OpportunityID, r.UserID))
	fmt.Printf("  Overall:       %d/100\n", r.OverallScore)
	fmt.Printf("  Must-have:     %d/100\n", r.MustHaveScore)
	fmt.Printf("  Nice-to-have:  %d/100\n", r.NiceToHaveScore)

	fmt.Println("\n  Requirements:")
	for _, rm := range r.Requirements {
		mark := "✗"
		best := "no matching claim"
		if rm.BestMatch != nil {
			mark = "✓"
			best = fmt.Sprintf("%s (%.2f)", rm.BestMatch.Label, rm.BestMatch.Similarity)
		}
		fmt.Printf("    %s [%s/%s] %s → %s\n", mark, rm.Requirement.Category, rm.Requirement.Type, rm.Requirement.Text, best)
	}

	if len(r.Strengths) > 0 {
		fmt.Println("\n  Strengths:")
		for _, s := range r.Strengths {
			fmt.Printf("    • %s: %s (%.2f)\n", s.Requirement.Text, s.BestMatch.Label, s.BestMatch.Similarity)
		}
	}
	if len(r.Gaps) > 0 {
		fmt.Println("\n  Gaps:")
		for _, g := range r.Gaps {
			fmt.Printf("    • %s (%s)\n", g.Text, g.Category)
		}
	}
	fmt.Println()
}
