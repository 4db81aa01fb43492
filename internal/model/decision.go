package model

// Decision is the decision function's verdict for one evidence item
type Decision struct {
	EvidenceID string
	Match      string // Label of an existing claim, empty when none
	Strength   Strength
	NewClaim   *NewClaim
}

// NewClaim is a claim proposed by the decision function
type NewClaim struct {
	Type        ClaimType `json:"type"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
}

// GroundingInput is one claim submitted for a grounding check
type GroundingInput struct {
	Claim    Claim
	Evidence []LinkedEvidence
}

// GroundingVerdict is the grounding checker's assessment of one claim
type GroundingVerdict struct {
	ClaimID  string
	Grounded bool
	Quality  float64 // 0-1 semantic quality of the label/description
	Reason   string
}
