package lib

import "net/http"

// HttpClient is the subset of http.Client the recognisers need, extracted so
// tests can substitute a mock transport.
type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}
