// Package prospect orchestrates directory searches and saved prospects.
//
// Search and SearchCompanies translate Criteria into backend requests. Page
// sizes default to DefaultPerPage and are capped at the configured ceiling.
// A response carrying a warning is a degraded Result, reported through a
// warning notice, never as an error.
//
// The Orchestrator owns the CreditBalance. It is updated only from response
// values greater than zero; a response that omits credits leaves it as is.
//
// Save and ListSaved need the active owner. Without one they return
// auth.ErrIdentity and post a reauth notice without touching the network.
package prospect
