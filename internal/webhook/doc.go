// Package webhook implements the HTTP gateway that turns provider webhooks
// into IRC notification lines.
//
// # Endpoints
//
//	POST /github              GitHub deliveries (path configurable)
//	POST /jira                JIRA (Atlassian Connect) events
//	POST /jira/installation   Atlassian Connect installation handshake
//	GET  /healthz             liveness and IRC state
//	GET  /metrics             Prometheus exposition (optional)
//
// # Request pipeline
//
// Every event request runs the same fixed sequence:
//
//  1. The body is read up to the configured size limit.
//  2. The provider's signature policy is applied (X-Hub-Signature HMAC for
//     GitHub, "Authorization: JWT" for JIRA). Nothing is parsed before this
//     step succeeds.
//  3. The body is decoded and the event kind determined.
//  4. The kind is formatted; unknown kinds produce no line and still succeed.
//  5. The line is handed to the Sender for the configured channel.
//
// # Installation
//
// The first successful installation stores the Atlassian Connect shared
// secret and every later attempt is rejected. Concurrent installations are
// serialised here and the store itself performs an atomic create, so exactly
// one request can win.
//
// Response bodies are short text/plain strings and never echo the payload.
package webhook
