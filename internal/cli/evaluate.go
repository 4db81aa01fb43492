package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ppiankov/claimsynth/internal/model"
)

const (
	promptKeep    = "Keep"
	promptDismiss = "Dismiss"
	promptQuit    = "Quit"
)

var (
	evalTimeout   time.Duration
	showDismissed bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Flag duplicate, incomplete and ungrounded claims",
	Long: `Evaluate checks all of the user's claims for duplicates and missing fields,
then sends a sample of the lowest-confidence claims with their evidence to a
grounding check. Found issues replace the user's open issues; dismissed issues
stay dismissed.`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "Review flagged claim issues",
}

var issuesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the user's open issues",
	Args:  cobra.NoArgs,
	RunE:  runIssuesList,
}

var issuesReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Walk through open issues and dismiss the ones that do not apply",
	Args:  cobra.NoArgs,
	RunE:  runIssuesReview,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(issuesCmd)
	issuesCmd.AddCommand(issuesListCmd)
	issuesCmd.AddCommand(issuesReviewCmd)

	evaluateCmd.Flags().DurationVar(&evalTimeout, "timeout", 15*time.Minute, "evaluation timeout")
	evaluateCmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	issuesListCmd.Flags().BoolVar(&showDismissed, "all", false, "include dismissed issues")
	issuesListCmd.Flags().BoolVar(&asJSON, "json", false, "print issues as JSON")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	user, err := resolveUser()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), evalTimeout)
	defer cancel()

	p, _, cleanup, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := p.Evaluate(ctx, user)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if asJSON {
		return printJSON(report)
	}

	fmt.Printf("✓ Evaluated %d claims (%d grounding-checked)\n", report.Claims, report.Sampled)
	fmt.Printf("  Errors:    %d\n", report.CountBySeverity(model.SeverityError))
	fmt.Printf("  Warnings:  %d\n", report.CountBySeverity(model.SeverityWarning))
	if len(report.Issues) > 0 {
		fmt.Printf("\nTo review them:\n  claimsynth issues review --user %s\n", user)
	}
	return nil
}

func runIssuesList(cmd *cobra.Command, args []string) error {
	user, err := resolveUser()
	if err != nil {
		return err
	}

	p, _, cleanup, err := openPipeline(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	issues, err := p.Store().ListIssues(cmd.Context(), user, showDismissed)
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}

	if asJSON {
		return printJSON(issues)
	}
	if len(issues) == 0 {
		fmt.Println("No open issues.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSEVERITY\tTYPE\tCLAIM\tMESSAGE")
	for _, i := range issues {
		msg := i.Message
		if i.Dismissed {
			msg += " (dismissed)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", i.ID, i.Severity, i.Type, i.ClaimID, msg)
	}
	return w.Flush()
}

func runIssuesReview(cmd *cobra.Command, args []string) error {
	user, err := resolveUser()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p, _, cleanup, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	st := p.Store()
	issues, err := st.ListIssues(ctx, user, false)
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}
	if len(issues) == 0 {
		fmt.Println("No open issues.")
		return nil
	}

	dismissed := 0
	for n, issue := range issues {
		label := issue.ClaimID
		if c, err := st.GetClaim(ctx, issue.ClaimID); err == nil {
			label = c.Label
		}

		fmt.Printf("\n[%d/%d] %s %s on %q\n  %s\n", n+1, len(issues), issue.Severity, issue.Type, label, issue.Message)

		prompt := promptui.Select{
			Label: "Action",
			Items: []string{promptKeep, promptDismiss, promptQuit},
		}
		_, choice, err := prompt.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			break
		}
		if err != nil {
			return err
		}

		switch choice {
		case promptQuit:
			fmt.Printf("\n✓ Dismissed %d issues\n", dismissed)
			return nil
		case promptDismiss:
			if err := st.DismissIssue(ctx, issue.ID); err != nil {
				return fmt.Errorf("dismiss issue %s: %w", issue.ID, err)
			}
			dismissed++
		}
	}

	fmt.Printf("\n✓ Dismissed %d issues\n", dismissed)
	return nil
}
