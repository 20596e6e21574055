// Package api implements the HTTP REST API for the poolchem server.
//
// New(svc, m, maxUpload) returns an http.Handler that serves:
//
//	GET  /api/v1/health          status, product count, calculations served
//	GET  /api/v1/products        catalog, defaults and modes
//	GET  /api/v1/ranges          ideal ranges and per-mode captions
//	POST /api/v1/calculate       dosing.Request; mode chosen in the body
//	POST /api/v1/dose/{mode}     dosing.Request; mode taken from the path
//	POST /api/v1/strip/analyze   multipart upload, form field "image"
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for the wrong method and {"error": "..."} bodies on failure
//   - Map invalid input, unknown products and unsupported modes to 400
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
