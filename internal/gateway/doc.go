// Package gateway orchestrates the scout-desk server components.
//
// # Overview
//
// The Gateway owns the store, the push broadcaster, the notice board and the
// backend client, and wires them into the session directory, conversation
// engine, prospect orchestrator and research service. One chi router serves
// all of them.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is cancelled
//
// Run starts the HTTP server and the directory and conversation loops in one
// errgroup. Cancelling ctx shuts everything down.
//
// # HTTP API
//
//	GET    /health, /health/ready
//	GET    /api/sessions?q=            POST /api/sessions
//	PATCH  /api/sessions/{id}          DELETE /api/sessions/{id}
//	POST   /api/sessions/{id}/select
//	GET    /api/conversation           POST /api/conversation/messages
//	POST   /api/prospects/search       POST /api/prospects/companies
//	POST   /api/prospects/save         GET  /api/prospects/saved
//	GET    /api/credits
//	POST   /api/research/jobs          GET  /api/research/jobs/{id}
//	POST   /api/research/jobs/{id}/generate
//	POST   /api/research/jobs/{id}/save
//	DELETE /api/research/jobs/{id}
//	GET    /api/research/reports       DELETE /api/research/reports/{id}?confirm=true
//	GET    /api/notices                DELETE /api/notices/{id}
//	PUT    /api/credentials            DELETE /api/credentials
//	GET    /ws/changes
//	POST   /mcp                        DELETE /mcp
//
// When records.enabled is set the records endpoints are mounted at the root
// as well.
//
// # Errors
//
//	auth.ErrIdentity        401, reauth
//	*client.NetworkError    502, retryable
//	state violations        409
//	validation              400
//	not found               404
//	store.ErrUnreachable    503
//
// # Authentication
//
// With auth.jwt_secret set, /api, /ws and /mcp require a bearer token whose
// subject is the workspace owner. /api/credentials only needs a valid bearer
// token, so an expired workspace credential can be replaced; the new token
// must still name the owner.
package gateway
