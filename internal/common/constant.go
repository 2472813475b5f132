package common

// Header names shared by the HTTP boundary and its clients.
const (
	AuthorizationHeaderName   = "Authorization"
	CapabilityTokenHeaderName = "X-Capability-Token"
	BearerPrefix              = "Bearer "
)

// RawTokenHexLength is the length of a client-generated bearer token:
// 32 random bytes, hex encoded.
const RawTokenHexLength = 64
