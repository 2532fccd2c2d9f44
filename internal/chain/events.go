package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ProposalCreatedEvent mirrors the governor's ProposalCreated log, decoded
// entirely from Data (no indexed topics beyond the signature hash).
type ProposalCreatedEvent struct {
	ProposalID *big.Int
	Proposer   common.Address
	Targets    []common.Address
	Values     []*big.Int
	Signatures []string
	Calldatas  [][]byte
	StartBlock *big.Int
	EndBlock   *big.Int
	Description string

	BlockNumber uint64
	TxHash      common.Hash
}

// VotingPowerDelegatedEvent mirrors the voting agent's delegation-granted
// log.
type VotingPowerDelegatedEvent struct {
	User          common.Address
	DAOGovernor   common.Address
	RiskThreshold *big.Int

	BlockNumber uint64
	TxHash      common.Hash
}

// DelegationRevokedEvent mirrors the voting agent's delegation-revoked
// log.
type DelegationRevokedEvent struct {
	User        common.Address
	DAOGovernor common.Address

	BlockNumber uint64
	TxHash      common.Hash
}

// decodeProposalCreated unpacks a raw log into a ProposalCreatedEvent.
func decodeProposalCreated(log gethtypes.Log) (ProposalCreatedEvent, error) {
	var raw struct {
		ProposalId *big.Int
		Proposer   common.Address
		Targets    []common.Address
		Values     []*big.Int
		Signatures []string
		Calldatas  [][]byte
		StartBlock *big.Int
		EndBlock   *big.Int
		Description string
	}
	if err := proposalCreatedEvent.Inputs.UnpackIntoInterface(&raw, log.Data); err != nil {
		return ProposalCreatedEvent{}, fmt.Errorf("unpack ProposalCreated: %w", err)
	}
	return ProposalCreatedEvent{
		ProposalID:  raw.ProposalId,
		Proposer:    raw.Proposer,
		Targets:     raw.Targets,
		Values:      raw.Values,
		Signatures:  raw.Signatures,
		Calldatas:   raw.Calldatas,
		StartBlock:  raw.StartBlock,
		EndBlock:    raw.EndBlock,
		Description: raw.Description,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}, nil
}

// decodeVotingPowerDelegated unpacks a raw log into a
// VotingPowerDelegatedEvent.
func decodeVotingPowerDelegated(log gethtypes.Log) (VotingPowerDelegatedEvent, error) {
	var raw struct {
		User          common.Address
		DaoGovernor   common.Address
		RiskThreshold *big.Int
	}
	if err := votingPowerDelegatedEvent.Inputs.UnpackIntoInterface(&raw, log.Data); err != nil {
		return VotingPowerDelegatedEvent{}, fmt.Errorf("unpack VotingPowerDelegated: %w", err)
	}
	return VotingPowerDelegatedEvent{
		User:          raw.User,
		DAOGovernor:   raw.DaoGovernor,
		RiskThreshold: raw.RiskThreshold,
		BlockNumber:   log.BlockNumber,
		TxHash:        log.TxHash,
	}, nil
}

// decodeDelegationRevoked unpacks a raw log into a DelegationRevokedEvent.
func decodeDelegationRevoked(log gethtypes.Log) (DelegationRevokedEvent, error) {
	var raw struct {
		User        common.Address
		DaoGovernor common.Address
	}
	if err := delegationRevokedEvent.Inputs.UnpackIntoInterface(&raw, log.Data); err != nil {
		return DelegationRevokedEvent{}, fmt.Errorf("unpack DelegationRevoked: %w", err)
	}
	return DelegationRevokedEvent{
		User:        raw.User,
		DAOGovernor: raw.DaoGovernor,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}, nil
}
