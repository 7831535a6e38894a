package consensus

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	TX_ERR_PARSE              ErrorCode = "TX_ERR_PARSE"
	TX_ERR_VERSION_INVALID    ErrorCode = "TX_ERR_VERSION_INVALID"
	TX_ERR_CHAIN_ID_INVALID   ErrorCode = "TX_ERR_CHAIN_ID_INVALID"
	TX_ERR_ADDRESS_INVALID    ErrorCode = "TX_ERR_ADDRESS_INVALID"
	TX_ERR_SELF_TRANSFER      ErrorCode = "TX_ERR_SELF_TRANSFER"
	TX_ERR_AMOUNT_INVALID     ErrorCode = "TX_ERR_AMOUNT_INVALID"
	TX_ERR_TIMESTAMP_INVALID  ErrorCode = "TX_ERR_TIMESTAMP_INVALID"
	TX_ERR_PAYLOAD_OVERSIZE   ErrorCode = "TX_ERR_PAYLOAD_OVERSIZE"
	TX_ERR_SIG_LENGTH_INVALID ErrorCode = "TX_ERR_SIG_LENGTH_INVALID"
	TX_ERR_ENCODE_OVERSIZE    ErrorCode = "TX_ERR_ENCODE_OVERSIZE"

	BLOCK_ERR_PARSE             ErrorCode = "BLOCK_ERR_PARSE"
	BLOCK_ERR_TX_COUNT_EXCEEDED ErrorCode = "BLOCK_ERR_TX_COUNT_EXCEEDED"
	BLOCK_ERR_LINKAGE_INVALID   ErrorCode = "BLOCK_ERR_LINKAGE_INVALID"
	BLOCK_ERR_HEIGHT_INVALID    ErrorCode = "BLOCK_ERR_HEIGHT_INVALID"
	BLOCK_ERR_MERKLE_INVALID    ErrorCode = "BLOCK_ERR_MERKLE_INVALID"
	BLOCK_ERR_POW_INVALID       ErrorCode = "BLOCK_ERR_POW_INVALID"
	BLOCK_ERR_TIMESTAMP_INVALID ErrorCode = "BLOCK_ERR_TIMESTAMP_INVALID"
)

// RuleError is a tagged consensus or validation failure. Every stateless
// transaction rule, codec rule and block rule surfaces one of the codes above
// rather than an untyped error. Stateful mempool admission failures are the
// node package's own error values, not RuleErrors.
type RuleError struct {
	Code ErrorCode
	Msg  string
}

func (e *RuleError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func ruleErr(code ErrorCode, msg string) error {
	return &RuleError{Code: code, Msg: msg}
}

// CodeOf returns the rule-error code carried by err, unwrapping as needed,
// or the empty code when err is not a RuleError.
func CodeOf(err error) ErrorCode {
	var re *RuleError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
