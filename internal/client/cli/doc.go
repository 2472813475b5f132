// Package cli runs the client-side smoke check: wait for /health, request a
// proof-of-work challenge for a locally sealed payload, solve it, create a
// secret and confirm it reports pending and refuses early retrieval.
package cli
