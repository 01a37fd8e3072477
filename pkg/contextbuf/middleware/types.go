// Package middleware wraps a contextbuf.Store with transforms applied to
// utterances on their way in and out of storage.
package middleware

import "github.com/aretw0/warmtransfer/pkg/contextbuf"

// Middleware allows wrapping a Store to add behavior.
type Middleware func(contextbuf.Store) contextbuf.Store

// Chain wraps store so that mws[0] is the outermost layer.
func Chain(store contextbuf.Store, mws ...Middleware) contextbuf.Store {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
