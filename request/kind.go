package request

import (
	"context"
	"net/http"
)

// Kind tells whether a request entered the handler chain from a client
// (Main) or was issued internally while handling another request (Sub).
type Kind int

const (
	Main Kind = iota
	Sub
)

func (k Kind) String() string {
	if k == Sub {
		return "sub"
	}
	return "main"
}

type kindKey struct{}

// WithKind returns a shallow copy of r carrying the given kind.
func WithKind(r *http.Request, k Kind) *http.Request {
	return r.WithContext(NewContext(r.Context(), k))
}

// NewContext returns a copy of ctx carrying the given kind.
func NewContext(ctx context.Context, k Kind) context.Context {
	return context.WithValue(ctx, kindKey{}, k)
}

// KindOf returns the kind of the request.
// Requests that were never marked are main requests.
func KindOf(r *http.Request) Kind {
	if k, ok := r.Context().Value(kindKey{}).(Kind); ok {
		return k
	}
	return Main
}
