package ledger

import "errors"

// Dispatch errors. A failed extrinsic leaves state untouched.
var (
	// ErrBadOrigin: the envelope is not validly signed.
	ErrBadOrigin = errors.New("bad origin: submission is not signed")
	// ErrNoneValue: cause_error was called before anything was stored.
	ErrNoneValue = errors.New("none value")
	// ErrStorageOverflow: incrementing the stored value would overflow.
	ErrStorageOverflow = errors.New("storage overflow")
)

var ErrStaleHeight = errors.New("block height does not follow the ledger head")
