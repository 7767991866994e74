// Package resolve turns a (reciter, bitrate, verse) tuple into a playable
// audio URL.
//
// Two implementations are provided: Client talks to a remote resolver
// service over HTTP, Direct probes the public audio hosts itself using the
// reciter catalog. Both are rate limited and report failures as ayah
// RESOLUTION_FAILURE errors.
package resolve

import (
	"context"

	"github.com/ayahplayer/ayah/internal/ayah"
)

// Request is everything a resolver needs to locate one clip.
type Request struct {
	ReciterID string
	Bitrate   ayah.Bitrate
	Verse     ayah.Verse
}

// NewRequest builds a request for verse v under sel.
func NewRequest(sel ayah.Selection, v ayah.Verse) Request {
	return Request{ReciterID: sel.ReciterID, Bitrate: sel.Bitrate, Verse: v}
}

// Selection returns the reciter and bitrate of the request.
func (r Request) Selection() ayah.Selection {
	return ayah.Selection{ReciterID: r.ReciterID, Bitrate: r.Bitrate}
}

// Resolver maps a request to a playable URL.
//
// Implementations must honor ctx cancellation and must be safe for
// concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (string, error)
}

// Func adapts an ordinary function to the Resolver interface.
type Func func(ctx context.Context, req Request) (string, error)

// Resolve calls f(ctx, req).
func (f Func) Resolve(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func failure(req Request, msg string, cause error) error {
	return ayah.NewError(ayah.CodeResolutionFailure, msg, cause).
		WithContext("reciter", req.ReciterID).
		WithContext("bitrate", string(req.Bitrate)).
		WithContext("verse", req.Verse.String())
}
