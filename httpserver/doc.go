/*
Package httpserver implements the HTTP surface of the POD mint service.

It exposes two groups of routes on a chi router:

 1. Template administration behind basic auth: the embedded admin page
    under /addPOD/, template listing, registration and removal.
 2. The public minting API: template content lookup, the short mint link
    redirect, and the two mint endpoints returning either a signed POD or a
    serialized POD-PCD.

Errors are mapped to status codes in one place (statusFor): malformed
requests and invalid proofs are 400, unknown templates 404, a reused
nullifier 409, an unavailable verifier 503 and signing or persistence
failures 500.

The server also carries the usual health endpoints (/livez, /readyz,
/drain, /undrain), optional pprof under /debug, and a separate Prometheus
metrics listener.
*/
package httpserver
