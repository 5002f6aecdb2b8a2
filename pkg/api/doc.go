/*
Package api exposes a Hamster manager over gRPC and HTTP.

# gRPC

The Provider service (hamster.v1.Provider) carries plain Go structs encoded
as JSON. The codec is registered under the "json" content subtype, so clients
select it with grpc.CallContentSubtype(CodecName). ServiceDesc is written by
hand and registered with grpc.Server.RegisterService.

	Method               Account   Result
	RegisterResource     required  resource id
	ResourceHeartbeat    required  -
	OfflineResource      required  names of DApps that could not be moved
	RequestDeployment    required  DApp id
	EndDeployment        required  -
	ChangeSpecification  required  new DApp id
	DAppHeartbeat        required  -
	GetResource          -         resource
	ListResources        -         resources, optionally by owner
	GetDApp              by name   DApp and deployment
	ListDApps            -         DApps, optionally by owner
	GetRank              -         epoch and capacity rank
	GetStats             -         pool summary
	WatchEvents          -         server stream of events

The caller's account travels in the x-hamster-account metadata key. Methods
that change state fail with Unauthenticated without it. Requests pass through
a chain of interceptors:

	Metrics ──► Account ──► Validation ──► RateLimit ──► handler

Provider errors become gRPC status codes (see ToStatus). FromStatus reverses
the mapping on the client so errors.Is works against the provider sentinels.

A second server serves only the read-only methods; StartUnix binds it to a
local socket for the CLI.

# HTTP

	GET /health              component health
	GET /ready               readiness of raft, store and api
	GET /live                liveness
	GET /metrics             Prometheus metrics
	GET /v1/resources        ?owner= filter
	GET /v1/resources/{id}
	GET /v1/dapps            ?owner= filter
	GET /v1/dapps/{id}
	GET /v1/rank
	GET /v1/stats
	GET /v1/events           websocket, ?type= filter (repeatable)
*/
package api
