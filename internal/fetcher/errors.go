package fetcher

import "fmt"

// Kind classifies a per-airport fetch failure.
type Kind string

const (
	KindTransport  Kind = "transport"
	KindTimeout    Kind = "timeout"
	KindHTTPStatus Kind = "http_status"
	KindMalformed  Kind = "malformed"
	KindNoData     Kind = "no_data"
	KindUnexpected Kind = "unexpected"
)

// Kinds lists every failure kind.
var Kinds = []Kind{KindTransport, KindTimeout, KindHTTPStatus, KindMalformed, KindNoData, KindUnexpected}

// Critical reports whether failures of this kind are logged at critical severity.
func (k Kind) Critical() bool {
	return k == KindNoData || k == KindUnexpected
}

// FetchError is the failure of one airport request. It never aborts the batch.
type FetchError struct {
	Kind       Kind
	Airport    string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == KindHTTPStatus:
		return fmt.Sprintf("%s: %s: unexpected status %d", e.Airport, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Airport, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Airport, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
