package fetcher

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a fetch produced no quote.
type ErrorKind uint8

const (
	// KindIo: the transport failed before a response arrived.
	KindIo ErrorKind = iota
	// KindTimeout: the deadline elapsed first.
	KindTimeout
	// KindHTTPStatus: a response arrived with a status other than 200.
	KindHTTPStatus
	// KindDecode: the body was not UTF-8 or not the expected JSON shape.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindIo:
		return "io"
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// FetchError is returned by FetchQuote for every failure.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch quote: unexpected status code %d", e.StatusCode)
	}
	if e.Err == nil {
		return "fetch quote: " + e.Kind.String()
	}
	return fmt.Sprintf("fetch quote: %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf reports the kind of a FetchError anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}
