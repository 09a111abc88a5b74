// Package httpapi is the gin HTTP boundary of the passgate server. Handlers
// decode requests, call the engine and map its errors to statuses through
// passgate.KindOf.
package httpapi
