// Package mcp exposes the workspace's prospect and research tools to external
// AI clients over the Model Context Protocol.
//
// # Protocol
//
// The server speaks JSON-RPC 2.0 over the Streamable HTTP transport on a
// single endpoint:
//
//   - POST /mcp - initialize, ping, tools/list, tools/call and notifications
//   - DELETE /mcp - end the session named by Mcp-Session-Id
//
// initialize returns an Mcp-Session-Id header that every later request must
// carry. Sessions live in memory and are bound to the bearer token that
// opened them.
//
// # Authentication
//
// The gateway mounts /mcp behind the same bearer-token middleware as /api, so
// every tool runs as the workspace owner.
//
// # Tools
//
//   - search_people, search_companies: directory searches; degraded results
//     are flagged rather than failed
//   - list_saved_prospects, credit_balance
//   - research_prospect: generates a report and holds it for review under a
//     job id
//   - save_research, discard_research: settle a held report
//   - list_reports
//
// A failure inside a tool is returned as a tool result with isError set. Bad
// arguments and unknown tools are JSON-RPC invalid-params errors.
//
// # Client configuration
//
//	{
//	  "mcpServers": {
//	    "scout": {
//	      "url": "http://localhost:7420/mcp",
//	      "authorization": "Bearer <token>"
//	    }
//	  }
//	}
package mcp
