package bridge

// OpError annotates an engine or registry error with the boundary operation
// that produced it. It wraps rather than replaces, so errors.Is against the
// sentinel taxonomy keeps working.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}
