package errors

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	t.Run("passes through error", func(t *testing.T) {
		err := Recover(func() error { return io.EOF })
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("converts panic", func(t *testing.T) {
		err := Recover(func() error { panic("backend exploded") })
		var pe *PanicError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "backend exploded", pe.Value)
		assert.NotEmpty(t, pe.StackTrace)
	})
}

func TestTransientError(t *testing.T) {
	err := NewTransientError("generate", io.ErrUnexpectedEOF)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "generate: unexpected EOF", err.Error())
	assert.False(t, IsTransient(io.EOF))
}

func TestMultiError(t *testing.T) {
	m := &MultiError{}
	assert.NoError(t, m.ErrorOrNil())

	m.Append(nil)
	assert.NoError(t, m.ErrorOrNil())

	m.Append(io.EOF)
	m.Append(errors.New("nats shutdown timed out"))
	err := m.ErrorOrNil()
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "2 error(s)")
}
