package patch

import (
	"errors"
	"fmt"
)

var (
	ErrNilWorkflow         = errors.New("workflow cannot be nil")
	ErrUnknownOperation    = errors.New("unknown operation type")
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrNodeNotFound        = errors.New("node not found")
	ErrDuplicateNode       = errors.New("duplicate node")
	ErrBranchRequired      = errors.New("branch is required for connections from a branching node")
	ErrInvalidBranch       = errors.New("branch is not declared by the source node")
	ErrUnexpectedBranch    = errors.New("source node does not branch")
	ErrInvalidPort         = errors.New("target node has no such input port")
	ErrInvalidOutputPort   = errors.New("source node has no such output port")
	ErrDuplicateConnection = errors.New("connection already exists")
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrDanglingConnection  = errors.New("operation leaves a connection to a missing node")
	ErrInvalidUpdate       = errors.New("invalid node update")
)

// OperationError reports the failure of one operation of a batch.
type OperationError struct {
	Index int    // Position of the operation in the batch
	Type  OpType // Operation type
	Err   error  // Underlying error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %d (%s): %v", e.Index, e.Type, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// IsInvalidOperation reports whether err comes from a malformed operation rather than the workflow state.
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrUnknownOperation) || errors.Is(err, ErrInvalidOperation)
}

// IsNodeNotFound reports whether err is caused by an unresolved node reference.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}
