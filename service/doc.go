// Package service implements an in-process service-invocation framework.
// A service is a single-purpose operation unit with declared inputs, an
// authorization gate, and a main routine that produces a success or error
// Result. Definitions are declarative tables built once per service type and
// support copy-then-extend derivation; instances are constructed fresh per
// call, validated eagerly, and never reused.
//
// The package also provides a named-callback protocol with logged invocation
// and stop isolation, and an Invoker helper for calling registered services
// with an ambient principal and logger.
package service
