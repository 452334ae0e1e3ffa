package ingest

import "fmt"

// Step names the projection write that failed.
type Step string

const (
	StepUpsertOrder Step = "upsert_order"
	StepDeleteItems Step = "delete_items"
	StepInsertItems Step = "insert_items"
)

// WriteError is a store rejection of one projection step.
type WriteError struct {
	Index   int // position in the batch, -1 when applied outside a batch
	OrderID string
	Step    Step
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write order %s (%s) at index %d: %v", e.OrderID, e.Step, e.Index, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// TxOp names a session lifecycle operation.
type TxOp string

const (
	OpBegin    TxOp = "begin"
	OpCommit   TxOp = "commit"
	OpRollback TxOp = "rollback"
)

// TransactionError is a failure to open, commit or roll back the batch session.
type TransactionError struct {
	Op  TxOp
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s transaction: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
