// Package client is the HTTP client for the research backend.
//
// # Endpoints
//
//   - POST /search, POST /company-search: directory searches
//   - POST /prospects/save, GET /prospects/list: saved prospects
//   - POST /research-prospect: deep-research generation
//   - POST /research/save, GET /research/list, DELETE /research/{id}: reports
//   - POST /answer: conversation answers
//
// # Authentication
//
// Every request carries "Authorization: Bearer <token>" from the TokenSource.
// Without a credential the value is "no-token"; the header is never omitted.
//
// # Errors
//
// Transport failures and non-2xx statuses are returned as *NetworkError.
// Nothing is retried automatically.
package client
