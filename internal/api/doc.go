// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. Handlers translate HTTP to calls on the import
// orchestrator, the explanation service and the scheduler's credential pool,
// and map their errors to status codes through errors.go.
package api
