package modem

import "errors"

var (
	// ErrNoDialer is returned when an Executor is constructed without a Dialer.
	//
	// This indicates a programming error. A Dialer is required in order to
	// reach the router.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrConfiguration is returned when a required connection setting (host,
	// username, password, LTE interface) is missing or invalid.
	//
	// It is always reported before any connection attempt. Callers should ask
	// the user to fix the stored settings; retrying is pointless.
	ErrConfiguration = errors.New("invalid remote configuration")

	// ErrConnection is returned when the SSH connection to the router cannot
	// be established: network failure, handshake failure or rejected
	// credentials. No command of the chain was executed.
	ErrConnection = errors.New("remote connection failed")

	// ErrExecution is returned by a Session when a single command could not be
	// run at the transport level, for example because the channel could not
	// be opened or the command timed out. Any partial output is discarded.
	//
	// The Executor does not propagate it: the failed command ends the chain
	// and the error text is reported in ChainResult.Stderr.
	ErrExecution = errors.New("remote execution failed")

	// ErrHealthCheck is returned by Ping when the router answered, but not
	// with the expected health check output.
	ErrHealthCheck = errors.New("health check failed")
)
