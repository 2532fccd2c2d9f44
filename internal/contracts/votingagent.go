package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// ContractBackend is the subset of bind.ContractBackend the voting agent
// needs: call simulation for revert-reason extraction plus transaction
// send, matching the narrow-interface pattern the scanner also follows.
type ContractBackend interface {
	bind.ContractBackend
}

// VotingAgent wraps castVoteWithRisk/castMultipleVotes behind a
// bind.BoundContract, the way §6's expansion specifies.
type VotingAgent struct {
	address common.Address
	bound   *bind.BoundContract
}

// NewVotingAgent binds to the voting-agent contract at address using
// backend for both calls and sends.
func NewVotingAgent(address common.Address, backend ContractBackend) *VotingAgent {
	return &VotingAgent{
		address: address,
		bound:   bind.NewBoundContract(address, votingAgentABI, backend, backend, backend),
	}
}

// CastVoteWithRisk casts a single vote for one delegator. riskScoreBasisPoints
// is the composite risk score scaled to basis points (score * 100), carried
// as a uint256.Int per the domain's 256-bit word convention and converted
// to *big.Int only at this ABI boundary.
func (v *VotingAgent) CastVoteWithRisk(
	ctx context.Context,
	opts *bind.TransactOpts,
	dao common.Address,
	proposalID *big.Int,
	user common.Address,
	support uint8,
	riskScoreBasisPoints *uint256.Int,
	reportHash [32]byte,
) (*gethtypes.Transaction, error) {
	tx, err := v.bound.Transact(opts, "castVoteWithRisk", dao, proposalID, user, support, riskScoreBasisPoints.ToBig(), reportHash)
	if err != nil {
		return nil, fmt.Errorf("castVoteWithRisk: %w", err)
	}
	return tx, nil
}

// CastMultipleVotes batches a vote per delegator in one transaction. All
// five parallel slices must share the same length; the contract itself
// also enforces this per §6, but failing fast here avoids an avoidable
// revert round trip.
func (v *VotingAgent) CastMultipleVotes(
	ctx context.Context,
	opts *bind.TransactOpts,
	dao common.Address,
	proposalIDs []*big.Int,
	users []common.Address,
	supports []uint8,
	riskScoresBasisPoints []*uint256.Int,
	reportHashes [][32]byte,
) (*gethtypes.Transaction, error) {
	n := len(proposalIDs)
	if len(users) != n || len(supports) != n || len(riskScoresBasisPoints) != n || len(reportHashes) != n {
		return nil, fmt.Errorf("castMultipleVotes: mismatched slice lengths (proposals=%d users=%d supports=%d scores=%d hashes=%d)",
			n, len(users), len(supports), len(riskScoresBasisPoints), len(reportHashes))
	}
	scores := make([]*big.Int, n)
	for i, s := range riskScoresBasisPoints {
		scores[i] = s.ToBig()
	}
	tx, err := v.bound.Transact(opts, "castMultipleVotes", dao, proposalIDs, users, supports, scores, reportHashes)
	if err != nil {
		return nil, fmt.Errorf("castMultipleVotes: %w", err)
	}
	return tx, nil
}

// Address returns the bound contract's on-chain address.
func (v *VotingAgent) Address() common.Address {
	return v.address
}
