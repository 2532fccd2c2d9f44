package contracts

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// dataError is the shape go-ethereum's rpc.Client errors satisfy when the
// node attached structured revert data to a JSON-RPC error response.
type dataError interface {
	Error() string
	ErrorData() interface{}
}

// SimulateRevertReason dry-runs a vote-casting call via eth_call to
// recover a human-readable revert reason before the executor falls back
// to classifying a bare transport error string. Contracts that revert
// with a Solidity `Error(string)` selector decode cleanly; anything else
// falls back to the raw hex payload so ClassifyRevertReason still has
// something to match against.
func (v *VotingAgent) SimulateRevertReason(ctx context.Context, backend ContractBackend, opts *bind.CallOpts, method string, args ...interface{}) string {
	input, err := votingAgentABI.Pack(method, args...)
	if err != nil {
		return fmt.Sprintf("pack %s for simulation: %v", method, err)
	}

	msg := ethereum.CallMsg{To: &v.address, Data: input}
	if opts != nil {
		msg.From = opts.From
	}

	if _, callErr := backend.CallContract(ctx, msg, nil); callErr != nil {
		return decodeRevert(callErr)
	}
	return ""
}

func decodeRevert(callErr error) string {
	derr, ok := callErr.(dataError)
	if !ok {
		return callErr.Error()
	}
	raw, ok := derr.ErrorData().(string)
	if !ok {
		return callErr.Error()
	}
	data, err := hexutil.Decode(raw)
	if err != nil {
		return callErr.Error()
	}
	if reason, err := abi.UnpackRevert(data); err == nil && reason != "" {
		return reason
	}
	return "0x" + hex.EncodeToString(data)
}
