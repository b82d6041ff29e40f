// Package extrinsic defines the calls the ledger accepts and the signed
// envelope that carries them.
package extrinsic

import (
	"errors"
	"fmt"
	"math"

	"github.com/ChainSafe/gossamer/pkg/scale"
)

var ErrMalformedCall = errors.New("malformed call")

// Call is one state-changing request. The set of implementations is closed;
// the ledger switches over it exhaustively.
type Call interface {
	callIndex() uint8
	Name() string
}

// SubmitPrice overwrites the ledger price cell with Payload.
type SubmitPrice struct {
	Payload uint32
}

// DoSomething stores Value and emits SomethingStored.
type DoSomething struct {
	Value uint32
}

// CauseError increments the stored value, failing when unset or on overflow.
type CauseError struct{}

// IndexNumber records Number in the node-local index at the including height.
type IndexNumber struct {
	Number uint64
}

const (
	indexDoSomething uint8 = iota
	indexCauseError
	indexSubmitPrice
	indexIndexNumber
)

func (DoSomething) callIndex() uint8 { return indexDoSomething }
func (CauseError) callIndex() uint8  { return indexCauseError }
func (SubmitPrice) callIndex() uint8 { return indexSubmitPrice }
func (IndexNumber) callIndex() uint8 { return indexIndexNumber }

func (DoSomething) Name() string { return "do_something" }
func (CauseError) Name() string  { return "cause_error" }
func (SubmitPrice) Name() string { return "submit_price" }
func (IndexNumber) Name() string { return "index_number" }

// EncodeCall writes the variant index followed by the SCALE-encoded fields.
func EncodeCall(c Call) ([]byte, error) {
	var field any
	switch c := c.(type) {
	case DoSomething:
		field = c.Value
	case CauseError:
		return []byte{c.callIndex()}, nil
	case SubmitPrice:
		field = c.Payload
	case IndexNumber:
		field = c.Number
	default:
		return nil, fmt.Errorf("%w: unknown call %T", ErrMalformedCall, c)
	}
	body, err := scale.Marshal(field)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Name(), err)
	}
	return append([]byte{c.callIndex()}, body...), nil
}

// DecodeCall is the inverse of EncodeCall. Unknown variants and trailing bytes
// are rejected.
func DecodeCall(data []byte) (Call, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedCall)
	}
	body := data[1:]
	switch data[0] {
	case indexDoSomething:
		var v uint32
		if err := decodeFixed(body, 4, &v); err != nil {
			return nil, err
		}
		return DoSomething{Value: v}, nil
	case indexCauseError:
		if len(body) != 0 {
			return nil, fmt.Errorf("%w: cause_error takes no arguments", ErrMalformedCall)
		}
		return CauseError{}, nil
	case indexSubmitPrice:
		var v uint32
		if err := decodeFixed(body, 4, &v); err != nil {
			return nil, err
		}
		return SubmitPrice{Payload: v}, nil
	case indexIndexNumber:
		var v uint64
		if err := decodeFixed(body, 8, &v); err != nil {
			return nil, err
		}
		return IndexNumber{Number: v}, nil
	default:
		return nil, fmt.Errorf("%w: unknown variant %d", ErrMalformedCall, data[0])
	}
}

func decodeFixed(body []byte, size int, dst any) error {
	if len(body) != size {
		return fmt.Errorf("%w: want %d argument bytes, got %d", ErrMalformedCall, size, len(body))
	}
	if err := scale.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	return nil
}

// ParseCall builds a call from its Name and a single numeric argument, as
// received by the submission API. cause_error ignores arg.
func ParseCall(name string, arg uint64) (Call, error) {
	switch name {
	case DoSomething{}.Name():
		if arg > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %s value %d overflows u32", ErrMalformedCall, name, arg)
		}
		return DoSomething{Value: uint32(arg)}, nil
	case CauseError{}.Name():
		return CauseError{}, nil
	case SubmitPrice{}.Name():
		if arg > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %s value %d overflows u32", ErrMalformedCall, name, arg)
		}
		return SubmitPrice{Payload: uint32(arg)}, nil
	case IndexNumber{}.Name():
		return IndexNumber{Number: arg}, nil
	default:
		return nil, fmt.Errorf("%w: unknown call %q", ErrMalformedCall, name)
	}
}
