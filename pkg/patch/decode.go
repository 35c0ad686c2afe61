package patch

import (
	"encoding/json"
	"fmt"
)

// DecodeOperations decodes a JSON array of operations, each object carrying a "type" discriminator.
func DecodeOperations(data []byte) ([]Operation, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: expected an array of operations: %v", ErrInvalidOperation, err)
	}

	ops := make([]Operation, 0, len(raw))

	for i, item := range raw {
		op, err := DecodeOperation(item)
		if err != nil {
			return nil, &OperationError{Index: i, Type: peekType(item), Err: err}
		}

		ops = append(ops, op)
	}

	return ops, nil
}

// DecodeOperation decodes a single operation object.
func DecodeOperation(data []byte) (Operation, error) {
	switch t := peekType(data); t {
	case OpAddNode:
		return decodeAs[AddNode](data)
	case OpRemoveNode:
		return decodeAs[RemoveNode](data)
	case OpUpdateNode:
		return decodeAs[UpdateNode](data)
	case OpMoveNode:
		return decodeAs[MoveNode](data)
	case OpEnableNode:
		return decodeAs[EnableNode](data)
	case OpDisableNode:
		return decodeAs[DisableNode](data)
	case OpAddConnection:
		return decodeAs[AddConnection](data)
	case OpRemoveConnection:
		return decodeAs[RemoveConnection](data)
	case OpCleanStaleConnections:
		return decodeAs[CleanStaleConnections](data)
	case OpUpdateSettings:
		return decodeAs[UpdateSettings](data)
	case OpUpdateName:
		return decodeAs[UpdateName](data)
	case OpAddTag:
		return decodeAs[AddTag](data)
	case OpRemoveTag:
		return decodeAs[RemoveTag](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, t)
	}
}

func peekType(data []byte) OpType {
	var head struct {
		Type OpType `json:"type"`
	}

	_ = json.Unmarshal(data, &head)

	return head.Type
}

func decodeAs[T Operation](data []byte) (Operation, error) {
	var op T
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	return op, nil
}
