package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// governorEventsABI and votingAgentEventsABI carry only the event
// fragments the scanner consumes. No parameter is `indexed`: the dynamic
// array types in ProposalCreated (address[], uint256[], string[], bytes[])
// cannot be indexed in Solidity without being reduced to an unrecoverable
// topic hash, so every field here decodes from log data.
const governorEventsABI = `[
	{
		"type": "event",
		"name": "ProposalCreated",
		"anonymous": false,
		"inputs": [
			{"name": "proposalId", "type": "uint256", "indexed": false},
			{"name": "proposer", "type": "address", "indexed": false},
			{"name": "targets", "type": "address[]", "indexed": false},
			{"name": "values", "type": "uint256[]", "indexed": false},
			{"name": "signatures", "type": "string[]", "indexed": false},
			{"name": "calldatas", "type": "bytes[]", "indexed": false},
			{"name": "startBlock", "type": "uint256", "indexed": false},
			{"name": "endBlock", "type": "uint256", "indexed": false},
			{"name": "description", "type": "string", "indexed": false}
		]
	}
]`

const votingAgentEventsABI = `[
	{
		"type": "event",
		"name": "VotingPowerDelegated",
		"anonymous": false,
		"inputs": [
			{"name": "user", "type": "address", "indexed": false},
			{"name": "daoGovernor", "type": "address", "indexed": false},
			{"name": "riskThreshold", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "DelegationRevoked",
		"anonymous": false,
		"inputs": [
			{"name": "user", "type": "address", "indexed": false},
			{"name": "daoGovernor", "type": "address", "indexed": false}
		]
	}
]`

// parsedGovernorABI and parsedVotingAgentABI are parsed once at package
// init; a malformed literal here is a programmer error, not a runtime
// condition, so failures panic rather than propagate as an error return.
var (
	parsedGovernorABI    abi.ABI
	parsedVotingAgentABI abi.ABI
)

func init() {
	var err error
	parsedGovernorABI, err = abi.JSON(strings.NewReader(governorEventsABI))
	if err != nil {
		panic("chain: invalid governor events ABI: " + err.Error())
	}
	parsedVotingAgentABI, err = abi.JSON(strings.NewReader(votingAgentEventsABI))
	if err != nil {
		panic("chain: invalid voting agent events ABI: " + err.Error())
	}
}

var (
	proposalCreatedEvent       = parsedGovernorABI.Events["ProposalCreated"]
	votingPowerDelegatedEvent  = parsedVotingAgentABI.Events["VotingPowerDelegated"]
	delegationRevokedEvent     = parsedVotingAgentABI.Events["DelegationRevoked"]
)
