package errs

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := Configuration("soc pricing needs a battery endpoint")
	err := Wrap("connection", "battery_link", cause)

	var be *BuildError
	assert.Assert(t, errors.As(err, &be))
	assert.Equal(t, be.Item, "connection")
	assert.Equal(t, be.Name, "battery_link")
	assert.Assert(t, errors.Is(err, ErrConfiguration))
	assert.ErrorContains(t, err, `failed to add connection "battery_link"`)
}

func TestWrapNil(t *testing.T) {
	assert.NilError(t, Wrap("element", "grid", nil))
}

func TestSentinels(t *testing.T) {
	assert.Assert(t, errors.Is(Value("empty"), ErrValue))
	assert.Assert(t, errors.Is(Type("want float64"), ErrType))
	assert.Assert(t, !errors.Is(Type("want float64"), ErrValue))
}
