package dispatch

import "crypto/subtle"

// Gate authorizes dispatch trigger invocations against a shared secret.
// Best-effort protection against accidental triggering, not per-caller
// identity; it is isolated here so it can be swapped for a stronger scheme
// without touching the engine.
type Gate struct {
	secret string
}

// NewGate creates a trigger gate. An empty secret disables the check.
func NewGate(secret string) *Gate {
	return &Gate{secret: secret}
}

// Authorize reports whether the provided credential may trigger a cycle.
func (g *Gate) Authorize(provided string) bool {
	if g.secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(g.secret), []byte(provided)) == 1
}
