package pool

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

var (
	// ErrBind matches every *BindError via errors.Is.
	ErrBind = errors.New("failed to bind instance port")

	// ErrPortsExhausted is returned once the allocator has handed out MaxPort.
	ErrPortsExhausted = errors.New("no ports left to allocate")

	// ErrManagerClosed is returned by Create after Shutdown.
	ErrManagerClosed = errors.New("instance manager is shut down")
)

// BindError reports that an instance could not listen on its allocated port.
// Nothing is registered when Create returns one.
type BindError struct {
	Addr string
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind instance port %d (%s): %v", e.Port, e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrBind) true for any BindError.
func (e *BindError) Is(target error) bool {
	return target == ErrBind
}

// isAddrInUse reports whether err is an "address already in use" bind failure.
func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EADDRINUSE) || strings.Contains(err.Error(), "address already in use")
}
