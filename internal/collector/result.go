package collector

// ResultKind classifies what a fetch attempt produced. An empty body is a
// valid outcome and is distinguished from a failed fetch, which surfaces as
// a FetchError instead of a result.
type ResultKind int

// Fetch result kinds.
const (
	ResultEmpty ResultKind = iota
	ResultJSON
	ResultText
)

// FetchResult is the decoded outcome of a successful request.
type FetchResult struct {
	Kind       ResultKind
	JSON       any
	Text       string
	StatusCode int
}

// IsEmpty reports whether the fetch produced no usable body.
func (r FetchResult) IsEmpty() bool { return r.Kind == ResultEmpty }
