// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room handler.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected without the room subprotocol.
	InvalidAuthTokenError = 3001 // Auth token missing, invalid or expired.
	InvalidRoomIDError    = 3003 // Room in the WS URL does not exist.
)

// Subprotocol is the only WebSocket subprotocol the room endpoint speaks.
const Subprotocol = "room"
