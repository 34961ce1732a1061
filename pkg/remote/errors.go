package remote

import "fmt"

// ConnectionError means the session or a command channel to Host could
// not be established.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandError means the transport failed while Command was running.
type CommandError struct {
	Host    string
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("run %q on %s: %v", e.Command, e.Host, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
