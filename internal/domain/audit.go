package domain

import "time"

// AuditAction enumerates the append-only audit log's action types, per §3.
type AuditAction string

const (
	AuditActionProposalDetected  AuditAction = "PROPOSAL_DETECTED"
	AuditActionDelegationGranted AuditAction = "DELEGATION_GRANTED"
	AuditActionDelegationRevoked AuditAction = "DELEGATION_REVOKED"
	AuditActionHighRiskFlagged   AuditAction = "HIGH_RISK_FLAGGED"
	AuditActionAutoVoteCast      AuditAction = "AUTO_VOTE_CAST"
	AuditActionAutoVoteFailed    AuditAction = "AUTO_VOTE_FAILED"
)

// AuditEntry mirrors the entity in §3. Entries are append-only: the
// relational store never updates or deletes a row once written. ProposalID
// is nil for delegation-lifecycle entries, which aren't tied to any one
// proposal.
type AuditEntry struct {
	InternalID string
	ProposalID *string
	Action     AuditAction

	Delegator   *string
	Direction   *VoteDirection
	ErrorCode   *ErrorCode
	TxHash      *string
	BlockNumber *uint64

	Detail string

	CreatedAt time.Time
}
