package relstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"daovoter/internal/domain"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("relstore: not found")

// ErrIllegalTransition is returned when a proposal's current status isn't
// in the caller's allowed predecessor set, or the target status does not
// rank ahead of it.
var ErrIllegalTransition = errors.New("relstore: illegal status transition")

// Store wraps the gorm database handle with daovoter's repository methods.
type Store struct {
	db *gorm.DB
}

// New wraps an already-migrated gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertProposal inserts a new proposal or, on a composite-key conflict,
// leaves the existing row's status untouched while updating descriptive
// fields. Returns the row's internal id either way.
func (s *Store) UpsertProposal(ctx context.Context, p domain.Proposal) (string, error) {
	row := toProposalRow(p)
	row.ID = uuid.New()
	if row.Status == "" {
		row.Status = string(domain.ProposalStatusPendingAnalysis)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "onchain_proposal_id"}, {Name: "dao_governor"}, {Name: "chain_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "proposer",
			"voting_start_block", "voting_end_block",
			"targets", "values", "calldatas",
			"detected_at_block", "creation_tx_hash",
		}),
	}).Create(&row).Error
	if err != nil {
		return "", fmt.Errorf("upsert proposal: %w", err)
	}

	existing, err := s.FindProposalByKey(ctx, p.Key())
	if err != nil {
		return "", err
	}
	return existing.InternalID, nil
}

// FindProposalByKey loads a proposal by its composite business key.
func (s *Store) FindProposalByKey(ctx context.Context, key domain.ProposalKey) (domain.Proposal, error) {
	var row ProposalRow
	err := s.db.WithContext(ctx).Where(
		"onchain_proposal_id = ? AND dao_governor = ? AND chain_id = ?",
		key.OnchainProposalID, strings.ToLower(key.DAOGovernor), key.ChainID,
	).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Proposal{}, ErrNotFound
	}
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("find proposal: %w", err)
	}
	return fromProposalRow(row), nil
}

// FindProposalByID loads a proposal by internal id.
func (s *Store) FindProposalByID(ctx context.Context, internalID string) (domain.Proposal, error) {
	id, err := uuid.Parse(internalID)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("parse proposal id: %w", err)
	}
	var row ProposalRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Proposal{}, ErrNotFound
		}
		return domain.Proposal{}, fmt.Errorf("find proposal by id: %w", err)
	}
	return fromProposalRow(row), nil
}

// TransitionProposalStatus moves a proposal from one of fromSet into to,
// enforcing the monotonic ordering invariant from §3. The row-level lock
// prevents a concurrent scanner/executor write from racing the check.
func (s *Store) TransitionProposalStatus(ctx context.Context, internalID string, fromSet []domain.ProposalStatus, to domain.ProposalStatus) error {
	id, err := uuid.Parse(internalID)
	if err != nil {
		return fmt.Errorf("parse proposal id: %w", err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ProposalRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("lock proposal: %w", err)
		}
		current := domain.ProposalStatus(row.Status)
		allowed := false
		for _, candidate := range fromSet {
			if candidate == current {
				allowed = true
				break
			}
		}
		if !allowed || !domain.CanTransition(current, to) {
			return ErrIllegalTransition
		}
		if err := tx.Model(&row).Update("status", string(to)).Error; err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return nil
	})
}

// UpsertAnalysisWithTransition records a completed analysis and advances
// the proposal's status in one transaction, so a crash between the two
// writes never leaves an analysis row orphaned from its status change.
func (s *Store) UpsertAnalysisWithTransition(ctx context.Context, a domain.Analysis, fromSet []domain.ProposalStatus, to domain.ProposalStatus) (string, error) {
	proposalID, err := uuid.Parse(a.ProposalID)
	if err != nil {
		return "", fmt.Errorf("parse proposal id: %w", err)
	}

	var analysisID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ProposalRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", proposalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("lock proposal: %w", err)
		}
		current := domain.ProposalStatus(row.Status)
		allowed := false
		for _, candidate := range fromSet {
			if candidate == current {
				allowed = true
				break
			}
		}
		if !allowed || !domain.CanTransition(current, to) {
			return ErrIllegalTransition
		}

		analysisRow := AnalysisRow{
			ID:                  uuid.New(),
			ProposalID:          proposalID,
			CompositeRiskScore:  a.CompositeRiskScore,
			RiskLevel:           string(a.RiskLevel),
			Recommendation:      string(a.Recommendation),
			ScamProbability:     a.ScamProbability,
			TreasuryImpactScore: a.TreasuryImpactScore,
			GovernanceRiskScore: a.GovernanceRiskScore,
			ReportHash:          a.ReportHash,
			ModelVersion:        a.ModelVersion,
			AttemptCount:        a.AttemptCount,
			LastError:           a.LastError,
		}
		if err := tx.Create(&analysisRow).Error; err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
		analysisID = analysisRow.ID.String()

		riskLevel := string(a.RiskLevel)
		recommendation := string(a.Recommendation)
		updates := map[string]any{
			"status":               string(to),
			"composite_risk_score": a.CompositeRiskScore,
			"risk_level":           riskLevel,
			"recommendation":       recommendation,
		}
		if err := tx.Model(&row).Updates(updates).Error; err != nil {
			return fmt.Errorf("update proposal after analysis: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return analysisID, nil
}

// UpsertDelegation inserts a new delegation or, on composite-key conflict,
// refreshes its voting power and reactivates it (the standard path when a
// prior delegation was revoked and later re-granted).
func (s *Store) UpsertDelegation(ctx context.Context, d domain.Delegation) (string, error) {
	row := toDelegationRow(d)
	row.ID = uuid.New()
	if row.Status == "" {
		row.Status = string(domain.DelegationStatusActive)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "delegator"}, {Name: "dao_governor"}, {Name: "chain_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"risk_threshold", "requires_approval", "status", "granted_at_block", "grant_tx_hash",
			"revoked_at_block", "revoke_tx_hash",
		}),
	}).Create(&row).Error
	if err != nil {
		return "", fmt.Errorf("upsert delegation: %w", err)
	}

	existing, err := s.FindDelegationByKey(ctx, d.Key())
	if err != nil {
		return "", err
	}
	return existing.InternalID, nil
}

// FindDelegationByKey loads a delegation by its composite business key.
func (s *Store) FindDelegationByKey(ctx context.Context, key domain.DelegationKey) (domain.Delegation, error) {
	var row DelegationRow
	err := s.db.WithContext(ctx).Where(
		"delegator = ? AND dao_governor = ? AND chain_id = ?",
		strings.ToLower(key.Delegator), strings.ToLower(key.DAOGovernor), key.ChainID,
	).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Delegation{}, ErrNotFound
	}
	if err != nil {
		return domain.Delegation{}, fmt.Errorf("find delegation: %w", err)
	}
	return fromDelegationRow(row), nil
}

// MarkDelegationRevoked transitions a delegation to REVOKED. Revoking a
// delegation the store has never seen is a no-op (rows=0), matching §4's
// guidance to log and ignore unknown revocations rather than error.
func (s *Store) MarkDelegationRevoked(ctx context.Context, key domain.DelegationKey, atBlock uint64, txHash string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&DelegationRow{}).Where(
		"delegator = ? AND dao_governor = ? AND chain_id = ? AND status = ?",
		strings.ToLower(key.Delegator), strings.ToLower(key.DAOGovernor), key.ChainID, string(domain.DelegationStatusActive),
	).Updates(map[string]any{
		"status":           string(domain.DelegationStatusRevoked),
		"revoked_at_block": atBlock,
		"revoke_tx_hash":   txHash,
	})
	if result.Error != nil {
		return false, fmt.Errorf("revoke delegation: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListActiveDelegations returns every ACTIVE delegation for a DAO governor
// on a chain, the eligible-voter set the executor filters against.
func (s *Store) ListActiveDelegations(ctx context.Context, daoGovernor string, chainID int64) ([]domain.Delegation, error) {
	var rows []DelegationRow
	err := s.db.WithContext(ctx).Where(
		"dao_governor = ? AND chain_id = ? AND status = ?",
		strings.ToLower(daoGovernor), chainID, string(domain.DelegationStatusActive),
	).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list active delegations: %w", err)
	}
	out := make([]domain.Delegation, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromDelegationRow(row))
	}
	return out, nil
}

// AppendAudit writes a single immutable audit entry.
func (s *Store) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	row, err := toAuditRow(entry)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// BulkAppendAudit writes many audit entries in a single statement, used by
// the executor after a batch vote call produces one outcome per delegator.
func (s *Store) BulkAppendAudit(ctx context.Context, entries []domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]AuditRow, 0, len(entries))
	for _, entry := range entries {
		row, err := toAuditRow(entry)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("bulk append audit: %w", err)
	}
	return nil
}

// HasAuditEntry reports whether an audit entry with the given action
// already exists for (proposalInternalID, delegator). The executor uses
// this to skip re-casting a vote on re-delivery of the same analysis
// "complete" event: a prior AUTO_VOTE_CAST entry only ever exists after a
// successful cast, since failed attempts are recorded as AUTO_VOTE_FAILED
// instead.
func (s *Store) HasAuditEntry(ctx context.Context, proposalInternalID, delegator string, action domain.AuditAction) (bool, error) {
	id, err := uuid.Parse(proposalInternalID)
	if err != nil {
		return false, fmt.Errorf("parse proposal id: %w", err)
	}
	var count int64
	err = s.db.WithContext(ctx).Model(&AuditRow{}).Where(
		"proposal_id = ? AND delegator = ? AND action = ?",
		id, strings.ToLower(delegator), string(action),
	).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count audit entries: %w", err)
	}
	return count > 0, nil
}

func toAuditRow(entry domain.AuditEntry) (AuditRow, error) {
	row := AuditRow{
		ID:          uuid.New(),
		Action:      string(entry.Action),
		Delegator:   entry.Delegator,
		TxHash:      entry.TxHash,
		BlockNumber: entry.BlockNumber,
		Detail:      entry.Detail,
		CreatedAt:   time.Now().UTC(),
	}
	if entry.ProposalID != nil {
		proposalID, err := uuid.Parse(*entry.ProposalID)
		if err != nil {
			return AuditRow{}, fmt.Errorf("parse proposal id: %w", err)
		}
		row.ProposalID = &proposalID
	}
	if entry.Direction != nil {
		dir := uint8(*entry.Direction)
		row.Direction = &dir
	}
	if entry.ErrorCode != nil {
		code := string(*entry.ErrorCode)
		row.ErrorCode = &code
	}
	row.EntryHash = auditEntryHash(row)
	return row, nil
}

// auditEntryHash fingerprints an audit row's content with sha256, giving
// the append-only log a per-entry checksum, per §3's trust-chain
// expectations for audit data.
func auditEntryHash(row AuditRow) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", row.ID, row.Action, deref(row.Delegator), row.Detail)
	if row.ProposalID != nil {
		fmt.Fprintf(h, "|%s", row.ProposalID.String())
	}
	fmt.Fprintf(h, "|%s", deref(row.TxHash))
	return hex.EncodeToString(h.Sum(nil))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
