// Package httpapi exposes the capture flow, the record store, the remote
// capabilities and the history mirror over JSON HTTP.
//
// Requests pass through Recovery, RequestID, Logger, CORS and Auth before
// reaching the mux. Handlers check the method themselves so a wrong method
// gets the same JSON error body as every other failure.
package httpapi
