package gosmr

import "errors"

// ErrorOutofMemory thrown when the region provider is exhausted.
var ErrorOutofMemory = errors.New("gosmr.outofmemory")

// ErrorInvalidPool thrown while validating a named pool whose header
// does not look like one created by this package.
var ErrorInvalidPool = errors.New("gosmr.invalidpool")
