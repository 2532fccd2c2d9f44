// Package relstore is the relational persistence layer (C2): proposals,
// delegations, analyses, and the append-only audit log, backed by
// Postgres via gorm.
package relstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProposalRow is the gorm model backing domain.Proposal.
type ProposalRow struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	OnchainProposalID string    `gorm:"size:128;uniqueIndex:idx_proposal_key"`
	DAOGovernor       string    `gorm:"size:64;uniqueIndex:idx_proposal_key"`
	ChainID           int64     `gorm:"uniqueIndex:idx_proposal_key"`

	Title       string `gorm:"size:512"`
	Description string `gorm:"type:text"`
	Proposer    string `gorm:"size:64;index"`

	VotingStartBlock uint64
	VotingEndBlock   uint64

	Targets    string `gorm:"type:text"` // comma-joined, like nhbchain's feeders column
	Values     string `gorm:"type:text"`
	Signatures string `gorm:"type:text"`
	Calldatas  string `gorm:"type:text"`

	DetectedAtBlock uint64
	CreationTxHash  string `gorm:"size:80"`

	Status string `gorm:"size:32;index"`

	CompositeRiskScore *int
	RiskLevel          *string `gorm:"size:16"`
	Recommendation     *string `gorm:"size:16"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProposalRow) TableName() string { return "proposals" }

// DelegationRow is the gorm model backing domain.Delegation.
type DelegationRow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Delegator   string    `gorm:"size:64;uniqueIndex:idx_delegation_key"`
	DAOGovernor string    `gorm:"size:64;uniqueIndex:idx_delegation_key"`
	ChainID     int64     `gorm:"uniqueIndex:idx_delegation_key"`

	RiskThreshold    int
	RequiresApproval bool

	Status string `gorm:"size:16;index"`

	GrantedAtBlock uint64
	GrantTxHash    string `gorm:"size:80"`

	RevokedAtBlock *uint64
	RevokeTxHash   *string `gorm:"size:80"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DelegationRow) TableName() string { return "delegations" }

// AnalysisRow is the gorm model backing domain.Analysis.
type AnalysisRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProposalID uuid.UUID `gorm:"type:uuid;index"`

	CompositeRiskScore int
	RiskLevel          string `gorm:"size:16"`
	Recommendation     string `gorm:"size:16"`

	ScamProbability     float64
	TreasuryImpactScore int
	GovernanceRiskScore int

	ReportHash   string `gorm:"size:80;index"`
	ModelVersion string `gorm:"size:32"`

	AttemptCount int
	LastError    *string `gorm:"type:text"`

	CreatedAt time.Time

	Proposal *ProposalRow `gorm:"constraint:OnDelete:CASCADE"`
}

func (AnalysisRow) TableName() string { return "analyses" }

// AuditRow is the gorm model backing domain.AuditEntry. Rows are never
// updated or deleted once written.
type AuditRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProposalID *uuid.UUID `gorm:"type:uuid;index"`
	Action     string     `gorm:"size:32;index"`

	Delegator   *string `gorm:"size:64"`
	Direction   *uint8
	ErrorCode   *string `gorm:"size:32"`
	TxHash      *string `gorm:"size:80"`
	BlockNumber *uint64

	Detail string `gorm:"type:text"`

	// EntryHash is a sha256 content fingerprint of this entry, giving the
	// append-only log a tamper-evident checksum per entry without requiring
	// a prior-row read on every write.
	EntryHash string `gorm:"size:64;index"`

	CreatedAt time.Time

	Proposal *ProposalRow `gorm:"constraint:OnDelete:CASCADE"`
}

func (AuditRow) TableName() string { return "audit_entries" }

// AutoMigrate applies the schema for all four relational entities.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ProposalRow{},
		&DelegationRow{},
		&AnalysisRow{},
		&AuditRow{},
	)
}
