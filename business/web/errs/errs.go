// Package errs provides types and support related to web v1 functionality.
package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/peer"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/state"
)

// Response is the form used for API responses from failures in the API.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is used to pass an error during the request through the
// application with web specific context.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (te *Trusted) Error() string {
	return te.Err.Error()
}

// Unwrap gives access to the wrapped error.
func (te *Trusted) Unwrap() error {
	return te.Err
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var te *Trusted
	return errors.As(err, &te)
}

// GetTrusted returns a copy of the Trusted pointer.
func GetTrusted(err error) *Trusted {
	var te *Trusted
	if !errors.As(err, &te) {
		return nil
	}
	return te
}

// =============================================================================

// statuses maps the errors the node reports for bad requests to the status
// the client sees.
var statuses = []struct {
	err    error
	status int
}{
	{state.ErrNotInitiator, http.StatusConflict},
	{state.ErrSelfInteraction, http.StatusBadRequest},
	{state.ErrZeroInteraction, http.StatusBadRequest},
	{state.ErrPendingHalfBlock, http.StatusConflict},
	{state.ErrQueueFull, http.StatusServiceUnavailable},
	{signature.ErrInvalidPublicKey, http.StatusBadRequest},
	{database.ErrTotalOverflow, http.StatusConflict},
	{database.ErrReadOnly, http.StatusServiceUnavailable},
	{database.ErrNotFound, http.StatusNotFound},
	{peer.ErrUnknownPeer, http.StatusNotFound},
}

// Classify turns the expected errors of the node into trusted errors. Any
// other error is returned as is.
func Classify(err error) error {
	if IsTrusted(err) {
		return err
	}

	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return NewTrusted(err, s.status)
		}
	}
	return err
}
