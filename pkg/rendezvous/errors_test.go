package rendezvous

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsKindOnlyComparison(t *testing.T) {
	err := NewNotFoundError("ns/default/peer-a")
	assert.True(t, errors.Is(err, ErrNotFoundKind))
	assert.False(t, errors.Is(err, ErrAddressKind))
}

func TestErrorUnwrapExposesWrappedCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewWrappedError(cause)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestAsRendezvousErrorFindsTypedError(t *testing.T) {
	err := NewRequestDispatchError("peer-a", "ns", "register", errors.New("dial refused"))
	var wrapped error = err
	rerr, ok := AsRendezvousError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindRequestDispatch, rerr.Kind)
	assert.Equal(t, "register", rerr.Command)
}

func TestAsRendezvousErrorFalseForPlainError(t *testing.T) {
	_, ok := AsRendezvousError(errors.New("plain"))
	assert.False(t, ok)
}

func TestErrorMessagesAreInformative(t *testing.T) {
	assert.Contains(t, NewNotFoundError("k").Error(), "k")
	assert.Contains(t, NewAddressError("/ip4/1.2.3.4", "missing peer-id").Error(), "missing peer-id")
	assert.Contains(t, NewNodeInaccessibleError().Error(), "no external addresses")
}
