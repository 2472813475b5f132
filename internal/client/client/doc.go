// Package client is the Go client for the secret delivery HTTP API.
//
// Client is the transport-agnostic contract; HTTPClient implements it over
// JSON. Non-2xx responses surface as *APIError carrying the server's
// machine-readable reason, and transport failures wrap ErrUnavailable.
//
// The server never sees plaintext or keys. Callers seal payloads locally
// (see cryptox.Seal) before CreateSecret.
package client
