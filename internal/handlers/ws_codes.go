// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used within the relay and practice handlers.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided auth token was invalid or expired.
	InvalidRoundIDError   = 3003 // Practice round could not be created or was lost.
)
