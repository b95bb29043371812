package position

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TransactionError wraps a failed or reverted state-changing call.
// Retryable by the operator, typically with adjusted slippage or gas.
type TransactionError struct {
	Op     string
	TxHash common.Hash
	Err    error
}

func (e *TransactionError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("%s tx %s: %v", e.Op, e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// InvalidStateError reports an operation attempted from the wrong store
// state. A usage error, never retried.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not valid in state %s", e.Op, e.State)
}
