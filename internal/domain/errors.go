package domain

import "strings"

// ErrorCode is the fixed taxonomy for failed vote attempts, per §4.5/§7.
// RISK_EXCEEDS_THRESHOLD is never produced by ClassifyRevertReason: the
// executor assigns it directly when its own pre-call eligibility filter
// rejects a delegator, before any contract call is attempted.
type ErrorCode string

const (
	ErrorCodeAlreadyVoted         ErrorCode = "ALREADY_VOTED"
	ErrorCodeNotDelegated         ErrorCode = "NOT_DELEGATED"
	ErrorCodeInsufficientPower    ErrorCode = "INSUFFICIENT_POWER"
	ErrorCodeProposalNotActive    ErrorCode = "PROPOSAL_NOT_ACTIVE"
	ErrorCodeRiskExceedsThreshold ErrorCode = "RISK_EXCEEDS_THRESHOLD"
	ErrorCodeNonceError           ErrorCode = "NONCE_ERROR"
	ErrorCodeGasError             ErrorCode = "GAS_ERROR"
	ErrorCodeUnknown              ErrorCode = "UNKNOWN_ERROR"
)

// revertSubstrings lists, in priority order, the lowercase substrings that
// classify a contract revert reason or RPC send error. Order matters: the
// first match wins, and some phrases (e.g. "gas") are deliberately generic
// enough to sit last.
var revertSubstrings = []struct {
	substr string
	code   ErrorCode
}{
	{"already voted", ErrorCodeAlreadyVoted},
	{"already cast", ErrorCodeAlreadyVoted},
	{"not delegated", ErrorCodeNotDelegated},
	{"no delegation", ErrorCodeNotDelegated},
	{"insufficient voting power", ErrorCodeInsufficientPower},
	{"insufficient power", ErrorCodeInsufficientPower},
	{"voting is closed", ErrorCodeProposalNotActive},
	{"proposal not active", ErrorCodeProposalNotActive},
	{"voting not started", ErrorCodeProposalNotActive},
	{"nonce too low", ErrorCodeNonceError},
	{"nonce too high", ErrorCodeNonceError},
	{"replacement transaction underpriced", ErrorCodeNonceError},
	{"gas required exceeds allowance", ErrorCodeGasError},
	{"out of gas", ErrorCodeGasError},
	{"intrinsic gas too low", ErrorCodeGasError},
	{"insufficient funds for gas", ErrorCodeGasError},
}

// ClassifyRevertReason maps a contract revert reason or send error string
// to a fixed ErrorCode, by case-insensitive substring match. An
// unrecognized reason classifies as UNKNOWN_ERROR rather than failing the
// classification itself; the raw reason is preserved alongside the code in
// the audit entry so nothing is lost.
func ClassifyRevertReason(reason string) ErrorCode {
	lower := strings.ToLower(reason)
	for _, candidate := range revertSubstrings {
		if strings.Contains(lower, candidate.substr) {
			return candidate.code
		}
	}
	return ErrorCodeUnknown
}
