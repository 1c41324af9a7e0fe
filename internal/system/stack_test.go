package system

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackReleasesInReverseOrder(t *testing.T) {
	stack := NewStack()

	var released []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		stack.Push(name, func() error {
			released = append(released, name)
			return nil
		})
	}
	require.Equal(t, 3, stack.Len())

	require.NoError(t, stack.Release())
	assert.Equal(t, []string{"third", "second", "first"}, released)
}

func TestStackDrainsPastFailures(t *testing.T) {
	stack := NewStack()

	var released []string
	stack.Push("first", func() error {
		released = append(released, "first")
		return nil
	})
	stack.Push("second", func() error {
		released = append(released, "second")
		return errors.New("busy")
	})
	stack.Push("third", func() error {
		released = append(released, "third")
		return nil
	})

	err := stack.Release()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")
	// a failing release never prevents the remaining releases
	assert.Equal(t, []string{"third", "second", "first"}, released)
}

func TestStackRetainsFirstError(t *testing.T) {
	stack := NewStack()

	stack.Push("first", func() error { return errors.New("first failed") })
	stack.Push("second", func() error { return errors.New("second failed") })

	err := stack.Release()
	require.Error(t, err)
	// releases run in reverse, so "second" fails first
	assert.Contains(t, err.Error(), "second failed")
	assert.NotContains(t, err.Error(), "first failed")
}

func TestStackReleasesExactlyOnce(t *testing.T) {
	stack := NewStack()

	count := 0
	stack.Push("resource", func() error {
		count++
		return nil
	})

	require.NoError(t, stack.Release())
	require.NoError(t, stack.Release())
	assert.Equal(t, 1, count)
}

func TestStackEmptyRelease(t *testing.T) {
	assert.NoError(t, NewStack().Release())
}
