package clients

import "errors"

var (
	// ErrChainIDMismatch is returned when the node reports a different chain id than configured.
	ErrChainIDMismatch = errors.New("clients: chain id mismatch")
	// ErrEmptyRPCURL is returned when no endpoint was configured.
	ErrEmptyRPCURL = errors.New("clients: rpc url required")
	// ErrUnexpectedOutput is returned when a contract call result cannot be unpacked.
	ErrUnexpectedOutput = errors.New("clients: unexpected contract output")
)
