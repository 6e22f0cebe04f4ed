package domain

import "fmt"

// BindError is returned when the relay cannot bind its UDP endpoint.
// It is fatal to relay startup.
type BindError struct {
	Addr string
	Err  error
}

func (b BindError) Error() string {
	return fmt.Sprintf("failed to bind udp %s: %v", b.Addr, b.Err)
}

func (b BindError) Unwrap() error {
	return b.Err
}

