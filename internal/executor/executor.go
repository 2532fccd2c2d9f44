// Package executor implements the vote executor (C5): for each completed
// analysis it decides a vote direction, filters the eligible delegate
// set, casts the on-chain vote (batched, with an individual-call
// fallback), and records every outcome to the audit log.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	"daovoter/internal/contracts"
	"daovoter/internal/domain"
	"daovoter/internal/metrics"
)

// reviewScoreCutoff is the §4.5 step-5 threshold separating a
// zero-eligible NEEDS_REVIEW outcome from a zero-eligible AUTO_APPROVED
// outcome.
const reviewScoreCutoff = 50

// pendingOrAnalyzing is the fromSet for every analysis-outcome transition.
// The scanner creates every proposal directly at PENDING_ANALYSIS (§3/§4.3)
// and nothing else in this system ever moves a row to ANALYZING, so
// PENDING_ANALYSIS must itself be a legal predecessor here; ANALYZING is
// accepted too in case a future producer starts marking rows in-flight.
var pendingOrAnalyzing = []domain.ProposalStatus{domain.ProposalStatusPendingAnalysis, domain.ProposalStatusAnalyzing}

// ProposalStore is the subset of relstore.Store the executor writes
// through.
type ProposalStore interface {
	FindProposalByID(ctx context.Context, internalID string) (domain.Proposal, error)
	ListActiveDelegations(ctx context.Context, daoGovernor string, chainID int64) ([]domain.Delegation, error)
	UpsertAnalysisWithTransition(ctx context.Context, a domain.Analysis, fromSet []domain.ProposalStatus, to domain.ProposalStatus) (string, error)
	TransitionProposalStatus(ctx context.Context, internalID string, fromSet []domain.ProposalStatus, to domain.ProposalStatus) error
	AppendAudit(ctx context.Context, entry domain.AuditEntry) error
	BulkAppendAudit(ctx context.Context, entries []domain.AuditEntry) error
	HasAuditEntry(ctx context.Context, proposalInternalID, delegator string, action domain.AuditAction) (bool, error)
}

// VoteCaster is the subset of contracts.VotingAgent the executor depends
// on, narrowed so the pipeline is unit-testable without a live chain.
type VoteCaster interface {
	CastVoteWithRisk(ctx context.Context, opts *bind.TransactOpts, dao common.Address, proposalID *big.Int, user common.Address, support uint8, riskScoreBasisPoints *uint256.Int, reportHash [32]byte) (*gethtypes.Transaction, error)
	CastMultipleVotes(ctx context.Context, opts *bind.TransactOpts, dao common.Address, proposalIDs []*big.Int, users []common.Address, supports []uint8, riskScoresBasisPoints []*uint256.Int, reportHashes [][32]byte) (*gethtypes.Transaction, error)
	SimulateRevertReason(ctx context.Context, backend contracts.ContractBackend, opts *bind.CallOpts, method string, args ...interface{}) string
}

// Config configures an Executor.
type Config struct {
	Concurrency int64 // default 8, per §5
}

// Executor drives the C5 per-result pipeline.
type Executor struct {
	cfg     Config
	store   ProposalStore
	votes   VoteCaster
	backend contracts.ContractBackend
	signer  *Signer
	sem     *semaphore.Weighted
	logger  *slog.Logger
	metrics *metrics.Registry
}

// New constructs an Executor. Concurrency defaults to 8 when left zero.
func New(cfg Config, store ProposalStore, votes VoteCaster, backend contracts.ContractBackend, signer *Signer, logger *slog.Logger) (*Executor, error) {
	if store == nil || votes == nil || signer == nil {
		return nil, fmt.Errorf("executor: store, vote caster, and signer are required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:     cfg,
		store:   store,
		votes:   votes,
		backend: backend,
		signer:  signer,
		sem:     semaphore.NewWeighted(cfg.Concurrency),
		logger:  logger.With("component", "vote_executor"),
		metrics: metrics.Default(),
	}, nil
}

// Run drains a pub/sub subscription (expected to be pattern-subscribed to
// "analysis:events:*"), dispatching each "complete" message to the
// pipeline on its own goroutine, bounded by the configured concurrency
// semaphore. Blocks until ctx is cancelled or the subscription closes.
func (e *Executor) Run(ctx context.Context, sub *redis.PubSub) error {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("analysis event subscription closed")
			}
			if err := e.sem.Acquire(ctx, 1); err != nil {
				return ctx.Err()
			}
			go func(m *redis.Message) {
				defer e.sem.Release(1)
				e.handleMessage(ctx, m)
			}(msg)
		}
	}
}

func (e *Executor) handleMessage(ctx context.Context, msg *redis.Message) {
	proposalID, ok := proposalIDFromChannel(msg.Channel)
	if !ok {
		return
	}
	event, err := parseAnalysisEvent([]byte(msg.Payload))
	if err != nil {
		e.logger.Error("malformed analysis event, dropping", "error", err, "proposal_id", proposalID)
		return
	}
	if event == nil {
		e.logger.Warn("unrecognized analysis event type, dropping", "proposal_id", proposalID)
		return
	}
	switch event.Type {
	case messageTypeComplete:
		if err := e.handleComplete(ctx, proposalID, event.Complete); err != nil {
			e.logger.Error("handle complete analysis failed", "error", err, "proposal_id", proposalID)
		}
	case messageTypeFailed:
		e.handleFailed(ctx, proposalID, event.Failed)
	case messageTypeProgress:
		// Transient signal only; no row, nothing for the executor to do.
	}
}

// handleComplete runs the full per-result pipeline from §4.5.
func (e *Executor) handleComplete(ctx context.Context, proposalInternalID string, payload *completePayload) error {
	proposal, err := e.store.FindProposalByID(ctx, proposalInternalID)
	if err != nil {
		// Stale event for a proposal this store has no record of (or a
		// different environment's data) — abort quietly per §4.5 step 1.
		e.logger.Warn("complete event for unknown proposal, ignoring", "proposal_id", proposalInternalID, "error", err)
		return nil
	}

	direction := domain.DecideVoteDirection(domain.Recommendation(payload.Recommendation), payload.CompositeRiskScore)

	delegations, err := e.store.ListActiveDelegations(ctx, proposal.DAOGovernor, proposal.ChainID)
	if err != nil {
		return fmt.Errorf("list active delegations: %w", err)
	}

	eligible := make([]domain.Delegation, 0, len(delegations))
	for _, d := range delegations {
		if d.RequiresApproval {
			continue // excluded silently, per §4.5 step 4
		}
		if payload.CompositeRiskScore > d.RiskThreshold {
			code := domain.ErrorCodeRiskExceedsThreshold
			if err := e.store.AppendAudit(ctx, domain.AuditEntry{
				ProposalID: &proposalInternalID,
				Action:     domain.AuditActionHighRiskFlagged,
				Delegator:  &d.Delegator,
				Direction:  &direction,
				ErrorCode:  &code,
				Detail:     fmt.Sprintf("composite_risk_score=%d exceeds risk_threshold=%d", payload.CompositeRiskScore, d.RiskThreshold),
			}); err != nil {
				e.logger.Error("append high-risk-flagged audit failed", "error", err, "delegator", d.Delegator)
			}
			continue
		}
		if d.RiskThreshold == 0 {
			continue // a zero threshold never auto-votes, even at score 0
		}
		eligible = append(eligible, d)
	}

	createdAt := time.Now().UTC()
	analysis := domain.Analysis{
		ProposalID:         proposal.InternalID,
		CompositeRiskScore: payload.CompositeRiskScore,
		RiskLevel:          domain.RiskLevel(payload.RiskLevel),
		Recommendation:     domain.Recommendation(payload.Recommendation),
		ReportHash:         reportHashHex(payload, createdAt),
		ModelVersion:       payload.ModelVersion,
		AttemptCount:       1,
		CreatedAt:          createdAt,
	}

	if len(eligible) == 0 {
		to := domain.ProposalStatusAutoApproved
		if payload.CompositeRiskScore >= reviewScoreCutoff {
			to = domain.ProposalStatusNeedsReview
		}
		if _, err := e.store.UpsertAnalysisWithTransition(ctx, analysis, pendingOrAnalyzing, to); err != nil {
			return fmt.Errorf("transition with zero eligible delegations: %w", err)
		}
		if err := e.store.AppendAudit(ctx, domain.AuditEntry{
			ProposalID: &proposalInternalID,
			Action:     domain.AuditActionAutoVoteCast,
			Direction:  &direction,
			Detail:     "no eligible delegations; resolved from analysis outcome alone",
		}); err != nil {
			e.logger.Error("append zero-eligible audit failed", "error", err)
		}
		return nil
	}

	if _, err := e.store.UpsertAnalysisWithTransition(ctx, analysis, pendingOrAnalyzing, statusForRecommendation(analysis.Recommendation, payload.CompositeRiskScore)); err != nil {
		return fmt.Errorf("record analysis: %w", err)
	}

	return e.castVotes(ctx, proposal, eligible, direction, payload, analysis)
}

// handleFailed implements §4.4/§7's job-retry-exhaustion path: once the
// analysis worker gives up on a job after its final attempt, the proposal
// is moved to FAILED and the reason is recorded, so it stops appearing as
// stuck in PENDING_ANALYSIS.
func (e *Executor) handleFailed(ctx context.Context, proposalInternalID string, payload *failedPayload) {
	code, message := "UNKNOWN", ""
	if payload != nil {
		code, message = payload.Code, payload.Message
	}

	if err := e.store.TransitionProposalStatus(ctx, proposalInternalID, pendingOrAnalyzing, domain.ProposalStatusFailed); err != nil {
		e.logger.Error("transition to failed after job retry exhaustion failed", "error", err, "proposal_id", proposalInternalID)
		return
	}

	if err := e.store.AppendAudit(ctx, domain.AuditEntry{
		ProposalID: &proposalInternalID,
		Action:     domain.AuditActionAutoVoteFailed,
		Detail:     fmt.Sprintf("analysis job exhausted retries: code=%s message=%s", code, message),
	}); err != nil {
		e.logger.Error("append job-failure audit failed", "error", err, "proposal_id", proposalInternalID)
	}
}

// statusForRecommendation is the non-zero-eligible branch of §4.5's final
// status-transition rule.
func statusForRecommendation(rec domain.Recommendation, score int) domain.ProposalStatus {
	switch rec {
	case domain.RecommendationApprove:
		return domain.ProposalStatusAutoApproved
	case domain.RecommendationReject:
		return domain.ProposalStatusAutoRejected
	default:
		if score >= reviewScoreCutoff {
			return domain.ProposalStatusNeedsReview
		}
		return domain.ProposalStatusAutoApproved
	}
}

func reportHashHex(payload *completePayload, createdAt time.Time) string {
	if payload.ReportHash != nil && *payload.ReportHash != "" {
		return *payload.ReportHash
	}
	hash := synthesizeReportHash(payload.AnalysisID, createdAt.UnixNano())
	return "0x" + common.Bytes2Hex(hash[:])
}

// scoreToBasisPoints converts a 0-100 composite score to basis points
// (score * 100), matching §4.5 step 6's score_scaled convention.
func scoreToBasisPoints(score int) *uint256.Int {
	return uint256.NewInt(uint64(score)).Mul(uint256.NewInt(uint64(score)), uint256.NewInt(100))
}

func parseProposalID(onchainID string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(onchainID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid onchain proposal id %q", onchainID)
	}
	return id, nil
}

func parseReportHash(hexHash string) [32]byte {
	var out [32]byte
	b := common.FromHex(hexHash)
	copy(out[32-len(b):], b)
	return out
}
