package contracts

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// solidityErrorSelector is the 4-byte selector for Solidity's built-in
// `Error(string)` revert encoding, the same one abi.UnpackRevert expects.
var solidityErrorSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

func mustAddress(t *testing.T, hexAddr string) common.Address {
	t.Helper()
	return common.HexToAddress(hexAddr)
}

func bigOne(t *testing.T) *big.Int {
	t.Helper()
	return big.NewInt(1)
}

// fakeDataErr models the shape go-ethereum's rpc.Client errors satisfy
// when a node attaches structured revert data to a JSON-RPC error.
type fakeDataErr struct {
	msg  string
	data interface{}
}

func (e fakeDataErr) Error() string         { return e.msg }
func (e fakeDataErr) ErrorData() interface{} { return e.data }

func packRevertReason(t *testing.T, reason string) string {
	t.Helper()
	args := abi.Arguments{{Type: mustType(t, "string")}}
	packed, err := args.Pack(reason)
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(append(append([]byte{}, solidityErrorSelector...), packed...))
}

func mustType(t *testing.T, name string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(name, "", nil)
	require.NoError(t, err)
	return typ
}

func TestDecodeRevert_SolidityErrorString(t *testing.T) {
	hexData := packRevertReason(t, "already voted")
	err := fakeDataErr{msg: "execution reverted", data: hexData}

	reason := decodeRevert(err)
	require.Equal(t, "already voted", reason)
}

func TestDecodeRevert_NonDataError(t *testing.T) {
	err := fmt.Errorf("connection reset")
	require.Equal(t, "connection reset", decodeRevert(err))
}

func TestDecodeRevert_DataNotHex(t *testing.T) {
	err := fakeDataErr{msg: "execution reverted", data: "not hex"}
	require.Equal(t, "execution reverted", decodeRevert(err))
}

func TestDecodeRevert_UnparseableDataFallsBackToRawHex(t *testing.T) {
	err := fakeDataErr{msg: "execution reverted", data: "0xdeadbeef"}
	require.Equal(t, "0xdeadbeef", decodeRevert(err))
}

func TestVotingAgentABI_PacksCastVoteWithRisk(t *testing.T) {
	packed, err := votingAgentABI.Pack("castVoteWithRisk",
		mustAddress(t, "0x0000000000000000000000000000000000000a"),
		bigOne(t),
		mustAddress(t, "0x0000000000000000000000000000000000000b"),
		uint8(1),
		bigOne(t),
		[32]byte{},
	)
	require.NoError(t, err)
	require.NotEmpty(t, packed)
}
