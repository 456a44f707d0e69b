package gateway

// WebSocket close codes used by the gateway, all within the RFC 6455
// pre-defined range.
const (
	// CloseNormal signals an orderly shutdown or a session replaced by a
	// newer connection from the same user.
	CloseNormal = 1000

	// CloseUnsupportedData is sent when the client sends a binary frame.
	CloseUnsupportedData = 1003

	// CloseInvalidPayload is sent on a JSON parse failure or an unknown
	// inbound event variant.
	CloseInvalidPayload = 1007

	// ClosePolicyViolation is sent for a missing or invalid token, a missing
	// IDENTIFY, or a heartbeat timeout.
	ClosePolicyViolation = 1008

	// CloseServerError is sent when an internal failure aborts the handshake.
	CloseServerError = 1011
)
