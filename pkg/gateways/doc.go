// Package gateways provides ResourceGateway implementations and decorators.
// It includes an in-memory gateway simulating a cloud inventory for local
// development and testing, a circuit breaker decorator that sheds load from
// a struggling provider API, and a telemetry decorator that records metrics
// and traces for every gateway call.
package gateways
