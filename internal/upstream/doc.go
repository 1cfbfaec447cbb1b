// Package upstream calls the faulty server on behalf of a run.
//
// Every call is a GET to the polling address carrying the run id in the
// X-Run-Id header. The JSON payload decides the outcome, not the status
// code: {"value": n} is Ok and {"error": "..."} is Err. Transport failures
// and unrecognized bodies are folded into Err so callers never see a Go
// error from [Requester.SendRequest].
package upstream
