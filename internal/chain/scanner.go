// Package chain implements the resilient chain scanner (C3): it consumes
// governor and voting-agent contract events with at-least-once delivery,
// tracks a durable cursor, and reconciles missed blocks after outages.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"daovoter/internal/domain"
	"daovoter/internal/metrics"
)

// State is the scanner's lifecycle state, per §4.3.
type State string

const (
	StateStopped           State = "stopped"
	StateStarting          State = "starting"
	StateSyncingHistorical State = "syncing_historical"
	StateLive              State = "live"
	StateReconnecting      State = "reconnecting"
)

// LogFilterer is the subset of ethclient.Client the scanner depends on.
// Narrowing to an interface keeps the scanner unit-testable without a live
// node, the same shape EVMClient takes in the oracle-attesterd service.
type LogFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- gethtypes.Log) (ethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// CursorStore is the subset of cursorstore.Store the scanner depends on.
type CursorStore interface {
	GetCursor(ctx context.Context, scannerID string) (uint64, bool, error)
	SetCursor(ctx context.Context, scannerID string, block uint64) error
	AcquireLock(ctx context.Context, lockID, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockID, token string) error
}

// ProposalRecorder is the subset of relstore.Store the scanner writes
// through on proposal/delegation events.
type ProposalRecorder interface {
	UpsertProposal(ctx context.Context, p domain.Proposal) (string, error)
	FindProposalByKey(ctx context.Context, key domain.ProposalKey) (domain.Proposal, error)
	UpsertDelegation(ctx context.Context, d domain.Delegation) (string, error)
	MarkDelegationRevoked(ctx context.Context, key domain.DelegationKey, atBlock uint64, txHash string) (bool, error)
	AppendAudit(ctx context.Context, entry domain.AuditEntry) error
}

// JobEnqueuer is the subset of queue.Bus the scanner enqueues analysis
// work through.
type JobEnqueuer interface {
	AddJob(ctx context.Context, proposalInternalID string, payload domain.AnalysisJobPayload) error
}

// Config configures a Scanner instance.
type Config struct {
	ScannerID        string
	GovernorAddress  common.Address
	VotingAgent      common.Address
	ChainID          int64
	StartBlock       uint64
	WindowSize       uint64        // blocks per historical-sync window; default 10,000
	LockTTL          time.Duration // per-event processing lock TTL; default 30s
	ReconnectDelay   time.Duration
	ConfirmationLag  uint64 // blocks to stay behind head, avoiding reorg churn
}

// Scanner drives the C3 state machine against a single chain.
type Scanner struct {
	cfg Config

	client    LogFilterer
	cursor    CursorStore
	proposals ProposalRecorder
	queue     JobEnqueuer
	logger    *slog.Logger
	metrics   *metrics.Registry

	state atomic.Value // State
}

// New constructs a Scanner. WindowSize, LockTTL, and ReconnectDelay default
// to their §4.3 values when left zero.
func New(cfg Config, client LogFilterer, cursor CursorStore, proposals ProposalRecorder, queue JobEnqueuer, logger *slog.Logger) (*Scanner, error) {
	if client == nil || cursor == nil || proposals == nil || queue == nil {
		return nil, fmt.Errorf("chain: scanner requires client, cursor store, proposal recorder, and job enqueuer")
	}
	if cfg.ScannerID == "" {
		return nil, fmt.Errorf("chain: scanner id required")
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 10_000
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scanner{
		cfg:       cfg,
		client:    client,
		cursor:    cursor,
		proposals: proposals,
		queue:     queue,
		logger:    logger.With("component", "chain_scanner", "scanner_id", cfg.ScannerID),
		metrics:   metrics.Default(),
	}
	s.setState(StateStopped)
	return s, nil
}

func (s *Scanner) setState(st State) {
	s.state.Store(st)
}

// State returns the scanner's current lifecycle state.
func (s *Scanner) State() State {
	st, _ := s.state.Load().(State)
	if st == "" {
		return StateStopped
	}
	return st
}

// Run blocks until ctx is cancelled, performing historical catch-up and
// then following the chain live, reconnecting with a delay on transport
// failure. It is the long-running entrypoint started once per chain by
// the orchestrator's bootstrap.
func (s *Scanner) Run(ctx context.Context) error {
	s.setState(StateStarting)

	cursor, found, err := s.cursor.GetCursor(ctx, s.cfg.ScannerID)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	from := s.cfg.StartBlock
	if found && cursor+1 > from {
		from = cursor + 1
	}

	for {
		head, err := s.client.BlockNumber(ctx)
		if err != nil {
			s.logger.Error("fetch head failed", "error", err)
			if !s.wait(ctx) {
				return ctx.Err()
			}
			continue
		}
		target := head
		if s.cfg.ConfirmationLag > 0 && head > s.cfg.ConfirmationLag {
			target = head - s.cfg.ConfirmationLag
		}

		if from > target {
			break
		}

		s.setState(StateSyncingHistorical)
		if err := s.syncHistorical(ctx, from, target); err != nil {
			s.logger.Error("historical sync window failed", "error", err)
			s.setState(StateReconnecting)
			if !s.wait(ctx) {
				return ctx.Err()
			}
			continue
		}
		from = target + 1
	}

	for {
		s.setState(StateLive)
		if err := s.runLive(ctx, from); err != nil {
			if ctx.Err() != nil {
				s.setState(StateStopped)
				return ctx.Err()
			}
			s.logger.Error("live subscription dropped, reconnecting", "error", err)
			s.setState(StateReconnecting)
			if !s.wait(ctx) {
				return ctx.Err()
			}
			cursor, found, err := s.cursor.GetCursor(ctx, s.cfg.ScannerID)
			if err != nil {
				return fmt.Errorf("reload cursor after reconnect: %w", err)
			}
			if found {
				from = cursor + 1
			}
			continue
		}
	}
}

func (s *Scanner) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.cfg.ReconnectDelay):
		return true
	}
}

// syncHistorical walks [from, to] in windows of at most WindowSize blocks,
// committing the cursor only after each window is fully processed. A
// failure mid-window aborts without advancing the cursor, so a restart
// re-plays the whole partial window rather than skipping ahead.
func (s *Scanner) syncHistorical(ctx context.Context, from, to uint64) error {
	for windowStart := from; windowStart <= to; {
		windowEnd := windowStart + s.cfg.WindowSize - 1
		if windowEnd > to {
			windowEnd = to
		}

		started := time.Now()
		logs, err := s.fetchLogs(ctx, windowStart, windowEnd)
		if err != nil {
			return fmt.Errorf("filter logs [%d,%d]: %w", windowStart, windowEnd, err)
		}
		for _, raw := range logs {
			if err := s.processLog(ctx, raw); err != nil {
				s.logger.Error("per-event handler failed, continuing", "error", err, "block", raw.BlockNumber, "tx", raw.TxHash.Hex())
			}
		}
		if err := s.cursor.SetCursor(ctx, s.cfg.ScannerID, windowEnd); err != nil {
			return fmt.Errorf("commit cursor at %d: %w", windowEnd, err)
		}
		s.metrics.ScannerWindowSeconds.Observe(time.Since(started).Seconds())

		windowStart = windowEnd + 1
	}
	return nil
}

// runLive subscribes to new logs starting at from and processes each as it
// arrives, advancing the cursor per-event since live delivery is
// naturally serialized.
func (s *Scanner) runLive(ctx context.Context, from uint64) error {
	ch := make(chan gethtypes.Log, 256)
	query := s.liveQuery(from)
	sub, err := s.client.SubscribeFilterLogs(ctx, query, ch)
	if err != nil {
		return fmt.Errorf("subscribe filter logs: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("subscription error: %w", err)
		case raw := <-ch:
			if err := s.processLog(ctx, raw); err != nil {
				s.logger.Error("per-event handler failed, continuing", "error", err, "block", raw.BlockNumber, "tx", raw.TxHash.Hex())
			}
			if err := s.cursor.SetCursor(ctx, s.cfg.ScannerID, raw.BlockNumber); err != nil {
				return fmt.Errorf("commit live cursor at %d: %w", raw.BlockNumber, err)
			}
		}
	}
}

func (s *Scanner) fetchLogs(ctx context.Context, from, to uint64) ([]gethtypes.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.cfg.GovernorAddress, s.cfg.VotingAgent},
		Topics: [][]common.Hash{{
			proposalCreatedEvent.ID,
			votingPowerDelegatedEvent.ID,
			delegationRevokedEvent.ID,
		}},
	}
	return s.client.FilterLogs(ctx, query)
}

func (s *Scanner) liveQuery(from uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		Addresses: []common.Address{s.cfg.GovernorAddress, s.cfg.VotingAgent},
		Topics: [][]common.Hash{{
			proposalCreatedEvent.ID,
			votingPowerDelegatedEvent.ID,
			delegationRevokedEvent.ID,
		}},
	}
}

// processLog dispatches one raw log to the handler matching its
// signature topic.
func (s *Scanner) processLog(ctx context.Context, raw gethtypes.Log) error {
	if len(raw.Topics) == 0 {
		return fmt.Errorf("log missing signature topic")
	}
	switch raw.Topics[0] {
	case proposalCreatedEvent.ID:
		return s.handleProposalCreated(ctx, raw)
	case votingPowerDelegatedEvent.ID:
		return s.handleVotingPowerDelegated(ctx, raw)
	case delegationRevokedEvent.ID:
		return s.handleDelegationRevoked(ctx, raw)
	default:
		return fmt.Errorf("unrecognized event signature %s", raw.Topics[0].Hex())
	}
}

func (s *Scanner) handleProposalCreated(ctx context.Context, raw gethtypes.Log) error {
	event, err := decodeProposalCreated(raw)
	if err != nil {
		s.metrics.ScannerEventsTotal.WithLabelValues("ProposalCreated", "decode_error").Inc()
		return err
	}

	proposalOnchainID := event.ProposalID.String()
	lockToken := uuid.NewString()
	ok, err := s.cursor.AcquireLock(ctx, proposalOnchainID, lockToken, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire proposal lock: %w", err)
	}
	if !ok {
		s.logger.Info("proposal lock held by another worker, skipping", "proposal_id", proposalOnchainID)
		return nil
	}
	defer s.cursor.ReleaseLock(ctx, proposalOnchainID, lockToken)

	targets := make([]string, len(event.Targets))
	for i, t := range event.Targets {
		targets[i] = t.Hex()
	}
	values := make([]string, len(event.Values))
	for i, v := range event.Values {
		values[i] = v.String()
	}
	calldatas := make([]string, len(event.Calldatas))
	for i, c := range event.Calldatas {
		calldatas[i] = common.Bytes2Hex(c)
	}

	proposal := domain.Proposal{
		OnchainProposalID: proposalOnchainID,
		DAOGovernor:       s.cfg.GovernorAddress.Hex(),
		ChainID:           s.cfg.ChainID,
		Title:             domain.ExtractTitle(event.Description),
		Description:       event.Description,
		Proposer:          event.Proposer.Hex(),
		VotingStartBlock:  event.StartBlock.Uint64(),
		VotingEndBlock:    event.EndBlock.Uint64(),
		Targets:           targets,
		Values:            values,
		Signatures:        event.Signatures,
		Calldatas:         calldatas,
		DetectedAtBlock:   event.BlockNumber,
		CreationTxHash:    event.TxHash.Hex(),
		Status:            domain.ProposalStatusPendingAnalysis,
	}

	// A replayed event for an already-stored proposal appends no second
	// PROPOSAL_DETECTED entry.
	_, findErr := s.proposals.FindProposalByKey(ctx, proposal.Key())
	alreadyKnown := findErr == nil

	internalID, err := s.proposals.UpsertProposal(ctx, proposal)
	if err != nil {
		s.metrics.ScannerEventsTotal.WithLabelValues("ProposalCreated", "store_error").Inc()
		return fmt.Errorf("upsert proposal: %w", err)
	}

	if !alreadyKnown {
		if err := s.proposals.AppendAudit(ctx, domain.AuditEntry{
			ProposalID: &internalID,
			Action:     domain.AuditActionProposalDetected,
			TxHash:     &proposal.CreationTxHash,
			Detail:     fmt.Sprintf("detected at block %d", event.BlockNumber),
		}); err != nil {
			return fmt.Errorf("append detection audit: %w", err)
		}
	}

	if err := s.queue.AddJob(ctx, internalID, domain.AnalysisJobPayload{
		OnchainProposalID: proposalOnchainID,
		DAOGovernor:       proposal.DAOGovernor,
		ChainID:           s.cfg.ChainID,
		Proposer:          proposal.Proposer,
		Title:             proposal.Title,
		Description:       proposal.Description,
		Metadata: map[string]string{
			"start_block": strconv.FormatUint(proposal.VotingStartBlock, 10),
			"end_block":   strconv.FormatUint(proposal.VotingEndBlock, 10),
			"tx_hash":     proposal.CreationTxHash,
		},
	}); err != nil {
		return fmt.Errorf("enqueue analysis job: %w", err)
	}

	s.metrics.ScannerEventsTotal.WithLabelValues("ProposalCreated", "ok").Inc()
	return nil
}

func (s *Scanner) handleVotingPowerDelegated(ctx context.Context, raw gethtypes.Log) error {
	event, err := decodeVotingPowerDelegated(raw)
	if err != nil {
		s.metrics.ScannerEventsTotal.WithLabelValues("VotingPowerDelegated", "decode_error").Inc()
		return err
	}

	delegation := domain.Delegation{
		Delegator:      event.User.Hex(),
		DAOGovernor:     event.DAOGovernor.Hex(),
		ChainID:         s.cfg.ChainID,
		RiskThreshold:   int(event.RiskThreshold.Uint64()),
		Status:          domain.DelegationStatusActive,
		GrantedAtBlock:  event.BlockNumber,
		GrantTxHash:     event.TxHash.Hex(),
	}
	if _, err := s.proposals.UpsertDelegation(ctx, delegation); err != nil {
		s.metrics.ScannerEventsTotal.WithLabelValues("VotingPowerDelegated", "store_error").Inc()
		return fmt.Errorf("upsert delegation: %w", err)
	}

	_ = s.proposals.AppendAudit(ctx, domain.AuditEntry{
		Action:    domain.AuditActionDelegationGranted,
		Delegator: &delegation.Delegator,
		TxHash:    &delegation.GrantTxHash,
		Detail:    fmt.Sprintf("risk_threshold=%d", delegation.RiskThreshold),
	})

	s.metrics.ScannerEventsTotal.WithLabelValues("VotingPowerDelegated", "ok").Inc()
	return nil
}

func (s *Scanner) handleDelegationRevoked(ctx context.Context, raw gethtypes.Log) error {
	event, err := decodeDelegationRevoked(raw)
	if err != nil {
		s.metrics.ScannerEventsTotal.WithLabelValues("DelegationRevoked", "decode_error").Inc()
		return err
	}

	key := domain.DelegationKey{
		Delegator:   event.User.Hex(),
		DAOGovernor: event.DAOGovernor.Hex(),
		ChainID:     s.cfg.ChainID,
	}
	txHash := event.TxHash.Hex()
	found, err := s.proposals.MarkDelegationRevoked(ctx, key, event.BlockNumber, txHash)
	if err != nil {
		s.metrics.ScannerEventsTotal.WithLabelValues("DelegationRevoked", "store_error").Inc()
		return fmt.Errorf("mark delegation revoked: %w", err)
	}
	if !found {
		// Revoking an unknown (delegator, dao, chain) triple is logged and
		// ignored per §3, not an error: the grant may have been missed by
		// an earlier scanner run, or never existed.
		s.logger.Warn("revoke event for unknown delegation, ignoring", "delegator", key.Delegator, "dao_governor", key.DAOGovernor)
		return nil
	}

	delegator := key.Delegator
	_ = s.proposals.AppendAudit(ctx, domain.AuditEntry{
		Action:    domain.AuditActionDelegationRevoked,
		Delegator: &delegator,
		TxHash:    &txHash,
		Detail:    "delegation revoked",
	})

	s.metrics.ScannerEventsTotal.WithLabelValues("DelegationRevoked", "ok").Inc()
	return nil
}
