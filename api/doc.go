/*
Package api defines the wire contract of the ceremony server.

It holds the request and response bodies exchanged with participants, the mapping between
ceremony errors and HTTP status codes, and the server configuration. The clients subpackage
implements CeremonyProvider over HTTP.

# Routes

	GET  /api/state                                  StateResponse
	POST /api/participants                           RegisterRequest -> RegisterResponse
	POST /api/participants/{position}/begin          ParticipantResponse
	PUT  /api/participants/{position}/contribution   artifact bytes -> ParticipantResponse
	GET  /api/participants/{position}/transcript     artifact bytes

Every error is returned as an ErrorResponse whose Code identifies the ceremony error, so
clients can match it with errors.Is after ErrorFromResponse.
*/
package api
