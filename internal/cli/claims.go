package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Inspect synthesized claims",
}

var claimsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the user's claims",
	Args:  cobra.NoArgs,
	RunE:  runClaimsList,
}

var claimsExplainCmd = &cobra.Command{
	Use:   "explain <claim-id>",
	Short: "Show how a claim's confidence is computed",
	Long: `Explain recomputes the claim's confidence from its linked evidence and prints
every factor: the evidence-count base, and per evidence item its strength,
source weight and recency decay.`,
	Args: cobra.ExactArgs(1),
	RunE: runClaimsExplain,
}

func init() {
	rootCmd.AddCommand(claimsCmd)
	claimsCmd.AddCommand(claimsListCmd)
	claimsCmd.AddCommand(claimsExplainCmd)

	claimsListCmd.Flags().BoolVar(&asJSON, "json", false, "print claims as JSON")
	claimsExplainCmd.Flags().BoolVar(&asJSON, "json", false, "print the explanation as JSON")
}

func runClaimsList(cmd *cobra.Command, args []string) error {
	user, err := resolveUser()
	if err != nil {
		return err
	}

	p, _, cleanup, err := openPipeline(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	claims, err := p.Store().ListClaims(cmd.Context(), user)
	if err != nil {
		return fmt.Errorf("list claims: %w", err)
	}

	if asJSON {
		return printJSON(claims)
	}
	if len(claims) == 0 {
		fmt.Println("No claims yet. Import evidence and run 'claimsynth synthesize'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tCONFIDENCE\tLABEL")
	for _, c := range claims {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", c.ID, c.Type, c.Confidence, c.Label)
	}
	return w.Flush()
}

func runClaimsExplain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, _, cleanup, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	exp, err := p.ExplainClaim(ctx, args[0])
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(exp)
	}

	b := exp.Breakdown
	header(fmt.Sprintf("%s (%s)", exp.Claim.Label, exp.Claim.Type))
	if exp.Claim.Description != "" {
		fmt.Printf("  %s\n\n", exp.Claim.Description)
	}
	fmt.Printf("  Formula:     %s\n", b.Formula)
	fmt.Printf("  Evidence:    %d (base %.2f)\n", len(exp.Evidence), b.Base)
	fmt.Printf("  Avg weight:  %.3f\n", b.AverageWeight)
	fmt.Printf("  Confidence:  %.3f", b.Confidence)
	if b.Capped {
		fmt.Print(" (capped)")
	}
	fmt.Println()
	if stored := exp.Claim.Confidence; stored != b.Confidence {
		fmt.Printf("  Stored:      %.3f (recomputed at the next synthesis)\n", stored)
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "  EVIDENCE\tSTRENGTH\tSOURCE\tDECAY\tAGE\tWEIGHT\tTEXT")
	for i, item := range b.Items {
		e := exp.Evidence[i]
		age := "-"
		if e.EvidenceDate != nil {
			age = fmt.Sprintf("%.1fy", item.AgeYears)
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s ×%.1f\t%s ×%.1f\t%.3f\t%s\t%.3f\t%s\n",
			e.EvidenceID, e.Strength, item.Strength, e.SourceType, item.Source,
			item.Decay, age, item.Combined, truncate(e.Text, 60))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
