package relstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"daovoter/internal/domain"
)

func TestProposalRowRoundTrip(t *testing.T) {
	score := 42
	level := domain.RiskLevelMedium
	rec := domain.RecommendationReview

	p := domain.Proposal{
		OnchainProposalID:  "7",
		DAOGovernor:        "0xAbCdEf0000000000000000000000000000000001",
		ChainID:            8453,
		Title:              "Safe Grant",
		Description:        "# Safe Grant\n0.1 ETH",
		Proposer:           "0x1111111111111111111111111111111111111111",
		VotingStartBlock:   100,
		VotingEndBlock:     200,
		Targets:            []string{"0xaaa", "0xbbb"},
		Values:             []string{"0", "1000"},
		Signatures:         []string{"", ""},
		Calldatas:          []string{"0xdead", "0xbeef"},
		DetectedAtBlock:    99,
		CreationTxHash:     "0xfeed",
		Status:             domain.ProposalStatusNeedsReview,
		CompositeRiskScore: &score,
		RiskLevel:          &level,
		Recommendation:     &rec,
	}

	row := toProposalRow(p)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", row.DAOGovernor, "governor address must be normalized to lower case")
	assert.Equal(t, "0xaaa,0xbbb", row.Targets)

	back := fromProposalRow(row)
	assert.Equal(t, p.Title, back.Title)
	assert.Equal(t, p.Targets, back.Targets)
	assert.Equal(t, p.Values, back.Values)
	assert.Equal(t, p.Calldatas, back.Calldatas)
	assert.Equal(t, *p.CompositeRiskScore, *back.CompositeRiskScore)
	assert.Equal(t, *p.RiskLevel, *back.RiskLevel)
	assert.Equal(t, *p.Recommendation, *back.Recommendation)
}

func TestDelegationRowRoundTrip(t *testing.T) {
	d := domain.Delegation{
		Delegator:      "0xCCCC000000000000000000000000000000000C",
		DAOGovernor:    "0xDDDD000000000000000000000000000000000D",
		ChainID:        1,
		RiskThreshold:  60,
		Status:         domain.DelegationStatusActive,
		GrantedAtBlock: 50,
		GrantTxHash:    "0xabc",
	}
	row := toDelegationRow(d)
	assert.Equal(t, "0xcccc000000000000000000000000000000000c", row.Delegator)

	back := fromDelegationRow(row)
	assert.Equal(t, d.RiskThreshold, back.RiskThreshold)
	assert.Equal(t, d.Status, back.Status)
}

func TestCSVHelpersRoundTrip(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"a", "b", "c"}, splitCSV(joinCSV([]string{"a", "b", "c"})))
}
