// Package contracts binds the voting-agent contract's two vote-casting
// methods, grounded on the teacher's ABI-literal-plus-init() pattern in
// internal/chain for decoding, turned around here to encode outbound
// calls instead.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const votingAgentCallsABI = `[
  {
    "type": "function",
    "name": "castVoteWithRisk",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "dao", "type": "address"},
      {"name": "proposalId", "type": "uint256"},
      {"name": "user", "type": "address"},
      {"name": "support", "type": "uint8"},
      {"name": "riskScore", "type": "uint256"},
      {"name": "reportHash", "type": "bytes32"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "castMultipleVotes",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "dao", "type": "address"},
      {"name": "proposalIds", "type": "uint256[]"},
      {"name": "users", "type": "address[]"},
      {"name": "supports", "type": "uint8[]"},
      {"name": "riskScores", "type": "uint256[]"},
      {"name": "reportHashes", "type": "bytes32[]"}
    ],
    "outputs": []
  }
]`

var votingAgentABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(votingAgentCallsABI))
	if err != nil {
		panic("contracts: parse voting agent ABI: " + err.Error())
	}
	votingAgentABI = parsed
}
