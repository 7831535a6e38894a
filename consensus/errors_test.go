package consensus

import (
	"fmt"
	"testing"
)

func TestRuleError_Formatting(t *testing.T) {
	var e *RuleError
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("nil receiver: %q", got)
	}
	e = &RuleError{Code: TX_ERR_PARSE}
	if got := e.Error(); got != "TX_ERR_PARSE" {
		t.Fatalf("empty msg: %q", got)
	}
	e = &RuleError{Code: TX_ERR_PARSE, Msg: "bad"}
	if got := e.Error(); got != "TX_ERR_PARSE: bad" {
		t.Fatalf("with msg: %q", got)
	}
}

func TestCodeOf(t *testing.T) {
	err := ruleErr(BLOCK_ERR_POW_INVALID, "x")
	if CodeOf(err) != BLOCK_ERR_POW_INVALID {
		t.Fatalf("direct: %s", CodeOf(err))
	}
	wrapped := fmt.Errorf("context: %w", err)
	if CodeOf(wrapped) != BLOCK_ERR_POW_INVALID {
		t.Fatalf("wrapped: %s", CodeOf(wrapped))
	}
	if CodeOf(fmt.Errorf("plain")) != "" {
		t.Fatalf("plain error must have empty code")
	}
}
