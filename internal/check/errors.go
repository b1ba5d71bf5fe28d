package check

import "fmt"

// Kind labels the reason a fetch failed
type Kind string

const (
	KindAuth    Kind = "AuthError"
	KindNetwork Kind = "NetworkError"
	KindQuery   Kind = "QueryError"
	KindDecode  Kind = "DecodeError"
)

// FetchError is returned when no document could be obtained from the API
type FetchError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt might succeed
func (e *FetchError) Retryable() bool {
	return e.Kind == KindNetwork
}
