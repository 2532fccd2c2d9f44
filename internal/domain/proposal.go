package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProposalStatus is the enum from §3. Transitions only ever move forward
// through this listed order; skipping ahead is allowed, regressing is not.
type ProposalStatus string

const (
	ProposalStatusPendingAnalysis ProposalStatus = "PENDING_ANALYSIS"
	ProposalStatusAnalyzing       ProposalStatus = "ANALYZING"
	ProposalStatusNeedsReview     ProposalStatus = "NEEDS_REVIEW"
	ProposalStatusAutoApproved    ProposalStatus = "AUTO_APPROVED"
	ProposalStatusAutoRejected    ProposalStatus = "AUTO_REJECTED"
	ProposalStatusExecuted        ProposalStatus = "EXECUTED"
	ProposalStatusFailed          ProposalStatus = "FAILED"
)

// statusRank fixes the order named in §3. A transition is legal only when
// the destination's rank is strictly greater than the source's.
var statusRank = map[ProposalStatus]int{
	ProposalStatusPendingAnalysis: 0,
	ProposalStatusAnalyzing:       1,
	ProposalStatusNeedsReview:     2,
	ProposalStatusAutoApproved:    3,
	ProposalStatusAutoRejected:    4,
	ProposalStatusExecuted:        5,
	ProposalStatusFailed:          6,
}

// CanTransition reports whether moving from one status to another respects
// the monotonic ordering invariant (skipping allowed, regressing is not).
func CanTransition(from, to ProposalStatus) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// ProposalKey is the unique composite key from §3. All addresses are
// lower-cased.
type ProposalKey struct {
	OnchainProposalID string
	DAOGovernor       string
	ChainID           int64
}

// Proposal mirrors the entity in §3.
type Proposal struct {
	InternalID        string
	OnchainProposalID string
	DAOGovernor       string
	ChainID           int64

	Title       string
	Description string
	Proposer    string

	VotingStartBlock uint64
	VotingEndBlock    uint64

	Targets    []string
	Values     []string
	Signatures []string
	Calldatas  []string

	DetectedAtBlock uint64
	CreationTxHash  string

	Status ProposalStatus

	CompositeRiskScore *int
	RiskLevel          *RiskLevel
	Recommendation     *Recommendation

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the proposal's unique composite key, with addresses
// normalized to lower case as required by §3.
func (p Proposal) Key() ProposalKey {
	return ProposalKey{
		OnchainProposalID: p.OnchainProposalID,
		DAOGovernor:       strings.ToLower(p.DAOGovernor),
		ChainID:           p.ChainID,
	}
}

// Validate checks the structural invariants from §3 that do not depend on
// persisted state (voting window ordering, equal-length call arrays).
func (p Proposal) Validate() error {
	if p.VotingStartBlock >= p.VotingEndBlock {
		return fmt.Errorf("voting_start_block (%d) must be before voting_end_block (%d)", p.VotingStartBlock, p.VotingEndBlock)
	}
	if len(p.Targets) != len(p.Values) || len(p.Targets) != len(p.Calldatas) || len(p.Targets) != len(p.Signatures) {
		return fmt.Errorf("targets/values/signatures/calldatas must have equal length, got %d/%d/%d/%d", len(p.Targets), len(p.Values), len(p.Signatures), len(p.Calldatas))
	}
	return nil
}
