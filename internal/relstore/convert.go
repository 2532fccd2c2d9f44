package relstore

import (
	"strings"

	"daovoter/internal/domain"
)

func joinCSV(items []string) string {
	return strings.Join(items, ",")
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func toProposalRow(p domain.Proposal) ProposalRow {
	row := ProposalRow{
		OnchainProposalID: p.OnchainProposalID,
		DAOGovernor:       strings.ToLower(p.DAOGovernor),
		ChainID:           p.ChainID,
		Title:             p.Title,
		Description:       p.Description,
		Proposer:          strings.ToLower(p.Proposer),
		VotingStartBlock:  p.VotingStartBlock,
		VotingEndBlock:    p.VotingEndBlock,
		Targets:           joinCSV(p.Targets),
		Values:            joinCSV(p.Values),
		Signatures:        joinCSV(p.Signatures),
		Calldatas:         joinCSV(p.Calldatas),
		DetectedAtBlock:   p.DetectedAtBlock,
		CreationTxHash:    p.CreationTxHash,
		Status:            string(p.Status),
	}
	if p.CompositeRiskScore != nil {
		row.CompositeRiskScore = p.CompositeRiskScore
	}
	if p.RiskLevel != nil {
		lvl := string(*p.RiskLevel)
		row.RiskLevel = &lvl
	}
	if p.Recommendation != nil {
		rec := string(*p.Recommendation)
		row.Recommendation = &rec
	}
	return row
}

func fromProposalRow(row ProposalRow) domain.Proposal {
	p := domain.Proposal{
		InternalID:        row.ID.String(),
		OnchainProposalID: row.OnchainProposalID,
		DAOGovernor:       row.DAOGovernor,
		ChainID:           row.ChainID,
		Title:             row.Title,
		Description:       row.Description,
		Proposer:          row.Proposer,
		VotingStartBlock:  row.VotingStartBlock,
		VotingEndBlock:    row.VotingEndBlock,
		Targets:           splitCSV(row.Targets),
		Values:            splitCSV(row.Values),
		Signatures:        splitCSV(row.Signatures),
		Calldatas:         splitCSV(row.Calldatas),
		DetectedAtBlock:   row.DetectedAtBlock,
		CreationTxHash:    row.CreationTxHash,
		Status:            domain.ProposalStatus(row.Status),
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	if row.CompositeRiskScore != nil {
		p.CompositeRiskScore = row.CompositeRiskScore
	}
	if row.RiskLevel != nil {
		lvl := domain.RiskLevel(*row.RiskLevel)
		p.RiskLevel = &lvl
	}
	if row.Recommendation != nil {
		rec := domain.Recommendation(*row.Recommendation)
		p.Recommendation = &rec
	}
	return p
}

func toDelegationRow(d domain.Delegation) DelegationRow {
	return DelegationRow{
		Delegator:        strings.ToLower(d.Delegator),
		DAOGovernor:      strings.ToLower(d.DAOGovernor),
		ChainID:          d.ChainID,
		RiskThreshold:    d.RiskThreshold,
		RequiresApproval: d.RequiresApproval,
		Status:           string(d.Status),
		GrantedAtBlock:   d.GrantedAtBlock,
		GrantTxHash:      d.GrantTxHash,
		RevokedAtBlock:   d.RevokedAtBlock,
		RevokeTxHash:     d.RevokeTxHash,
	}
}

func fromDelegationRow(row DelegationRow) domain.Delegation {
	return domain.Delegation{
		InternalID:       row.ID.String(),
		Delegator:        row.Delegator,
		DAOGovernor:      row.DAOGovernor,
		ChainID:          row.ChainID,
		RiskThreshold:    row.RiskThreshold,
		RequiresApproval: row.RequiresApproval,
		Status:           domain.DelegationStatus(row.Status),
		GrantedAtBlock:   row.GrantedAtBlock,
		GrantTxHash:      row.GrantTxHash,
		RevokedAtBlock:   row.RevokedAtBlock,
		RevokeTxHash:     row.RevokeTxHash,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}
