package executor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"daovoter/internal/domain"
)

// retryableCodes are the error codes §7 calls out as worth a single retry
// with refreshed signer state before surfacing: both can be transient
// artifacts of a stale pending-nonce or gas estimate, unlike the others,
// which are contract-state rejections a retry cannot fix.
var retryableCodes = map[domain.ErrorCode]bool{
	domain.ErrorCodeNonceError: true,
	domain.ErrorCodeGasError:   true,
}

// castVotes attempts a single batch cast across every eligible delegator
// and falls back to individual calls per delegator on batch failure, per
// §4.5 step 6 and its fallback rule. Idempotency against re-delivery is checked per
// delegator before any call is attempted.
func (e *Executor) castVotes(ctx context.Context, proposal domain.Proposal, eligible []domain.Delegation, direction domain.VoteDirection, payload *completePayload, analysis domain.Analysis) error {
	pending := make([]domain.Delegation, 0, len(eligible))
	for _, d := range eligible {
		cast, err := e.store.HasAuditEntry(ctx, proposal.InternalID, d.Delegator, domain.AuditActionAutoVoteCast)
		if err != nil {
			e.logger.Error("check prior vote audit failed", "error", err, "delegator", d.Delegator)
			continue
		}
		if cast {
			e.logger.Info("vote already cast for delegator, skipping re-delivery", "proposal_id", proposal.InternalID, "delegator", d.Delegator)
			continue
		}
		pending = append(pending, d)
	}
	if len(pending) == 0 {
		return nil
	}

	dao := common.HexToAddress(proposal.DAOGovernor)
	onchainID, err := parseProposalID(proposal.OnchainProposalID)
	if err != nil {
		return fmt.Errorf("parse onchain proposal id: %w", err)
	}
	reportHash := parseReportHash(analysis.ReportHash)
	scaledScore := scoreToBasisPoints(payload.CompositeRiskScore)

	if e.tryBatchCast(ctx, dao, onchainID, pending, direction, scaledScore, reportHash, proposal.InternalID) {
		return nil
	}

	e.castIndividually(ctx, dao, onchainID, pending, direction, scaledScore, reportHash, proposal.InternalID)
	return nil
}

// tryBatchCast attempts cast_multiple_votes for the whole pending set.
// Returns true on success (all outcomes recorded); false signals the
// batch-fallback path should run instead.
func (e *Executor) tryBatchCast(ctx context.Context, dao common.Address, proposalID *big.Int, pending []domain.Delegation, direction domain.VoteDirection, scaledScore *uint256.Int, reportHash [32]byte, proposalInternalID string) bool {
	n := len(pending)
	proposalIDs := make([]*big.Int, n)
	users := make([]common.Address, n)
	supports := make([]uint8, n)
	scores := make([]*uint256.Int, n)
	hashes := make([][32]byte, n)
	for i, d := range pending {
		proposalIDs[i] = proposalID
		users[i] = common.HexToAddress(d.Delegator)
		supports[i] = uint8(direction)
		scores[i] = scaledScore
		hashes[i] = reportHash
	}

	opts, release := e.signer.Acquire(ctx)
	defer release()

	tx, err := e.votes.CastMultipleVotes(ctx, opts, dao, proposalIDs, users, supports, scores, hashes)
	if err != nil {
		e.logger.Warn("batch vote cast failed, falling back to individual calls", "error", err, "proposal_id", proposalInternalID, "count", n)
		return false
	}

	entries := make([]domain.AuditEntry, 0, n)
	for _, d := range pending {
		delegator := d.Delegator
		txHash := tx.Hash().Hex()
		entries = append(entries, domain.AuditEntry{
			ProposalID: &proposalInternalID,
			Action:     domain.AuditActionAutoVoteCast,
			Delegator:  &delegator,
			Direction:  &direction,
			TxHash:     &txHash,
			Detail:     "batch cast_multiple_votes",
		})
	}
	if err := e.store.BulkAppendAudit(ctx, entries); err != nil {
		e.logger.Error("bulk append vote-cast audit failed", "error", err)
	}
	e.metrics.VotesCast.WithLabelValues(direction.String(), "batch").Add(float64(n))
	return true
}

// castIndividually attempts cast_vote_with_risk once per delegator,
// classifying and recording each outcome independently so one delegator's
// revert never blocks another's vote, per §4.5's batch-fallback policy.
func (e *Executor) castIndividually(ctx context.Context, dao common.Address, proposalID *big.Int, pending []domain.Delegation, direction domain.VoteDirection, scaledScore *uint256.Int, reportHash [32]byte, proposalInternalID string) {
	for _, d := range pending {
		user := common.HexToAddress(d.Delegator)
		delegator := d.Delegator

		tx, reason, code := e.attemptCastVoteWithRisk(ctx, dao, proposalID, user, direction, scaledScore, reportHash)
		if tx == nil && retryableCodes[code] {
			e.logger.Warn("retrying vote cast once with refreshed signer state", "delegator", delegator, "proposal_id", proposalInternalID, "code", code)
			tx, reason, code = e.attemptCastVoteWithRisk(ctx, dao, proposalID, user, direction, scaledScore, reportHash)
		}

		if tx == nil {
			e.metrics.VotesFailed.WithLabelValues(string(code)).Inc()

			if code == domain.ErrorCodeAlreadyVoted {
				e.logger.Info("vote already cast on-chain, treating as benign", "delegator", delegator, "proposal_id", proposalInternalID)
			}

			detail := reason
			if len(detail) > 200 {
				detail = detail[:200]
			}
			if auditErr := e.store.AppendAudit(ctx, domain.AuditEntry{
				ProposalID: &proposalInternalID,
				Action:     domain.AuditActionAutoVoteFailed,
				Delegator:  &delegator,
				Direction:  &direction,
				ErrorCode:  &code,
				Detail:     detail,
			}); auditErr != nil {
				e.logger.Error("append vote-failed audit failed", "error", auditErr, "delegator", delegator)
			}
			continue
		}

		txHash := tx.Hash().Hex()
		if auditErr := e.store.AppendAudit(ctx, domain.AuditEntry{
			ProposalID: &proposalInternalID,
			Action:     domain.AuditActionAutoVoteCast,
			Delegator:  &delegator,
			Direction:  &direction,
			TxHash:     &txHash,
			Detail:     "individual cast_vote_with_risk",
		}); auditErr != nil {
			e.logger.Error("append vote-cast audit failed", "error", auditErr, "delegator", delegator)
		}
		e.metrics.VotesCast.WithLabelValues(direction.String(), "individual").Inc()
	}
}

// attemptCastVoteWithRisk makes a single cast_vote_with_risk call. On
// failure it resolves a human-readable revert reason and classifies it;
// the caller decides whether that classification warrants a retry.
func (e *Executor) attemptCastVoteWithRisk(ctx context.Context, dao common.Address, proposalID *big.Int, user common.Address, direction domain.VoteDirection, scaledScore *uint256.Int, reportHash [32]byte) (*gethtypes.Transaction, string, domain.ErrorCode) {
	opts, release := e.signer.Acquire(ctx)
	tx, err := e.votes.CastVoteWithRisk(ctx, opts, dao, proposalID, user, uint8(direction), scaledScore, reportHash)
	release()
	if err == nil {
		return tx, "", ""
	}

	reason := e.votes.SimulateRevertReason(ctx, e.backend, nil, "castVoteWithRisk", dao, proposalID, user, uint8(direction), scaledScore.ToBig(), reportHash)
	if reason == "" {
		reason = err.Error()
	}
	return nil, reason, domain.ClassifyRevertReason(reason)
}
