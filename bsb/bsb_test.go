package bsb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestU8U16U32(t *testing.T) {
	b := New([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})
	require.EqualValues(t, 0x01, b.U8())
	require.EqualValues(t, 0x0203, b.U16())
	require.EqualValues(t, 0x04050607, b.U32())
	require.False(t, b.Error())
	require.EqualValues(t, 1, b.Remaining())
}

func TestTruncatedReadSticksErrorAndZeroes(t *testing.T) {
	b := New([]byte{0xaa})
	require.EqualValues(t, 0, b.U16())
	require.True(t, b.Error())
	require.EqualValues(t, 0, b.U8())
	require.EqualValues(t, 0, b.U32())
	require.Equal(t, 0, b.Remaining())
}

func TestSliceAndRewind(t *testing.T) {
	b := New([]byte("hello world"))
	s := b.Slice(5)
	require.Equal(t, "hello", string(s))
	b.Rewind(5)
	require.Equal(t, 11, b.Remaining())
}

func TestSliceOverrunFails(t *testing.T) {
	b := New([]byte{1, 2, 3})
	require.Nil(t, b.Slice(10))
	require.True(t, b.Error())
}

func TestClearError(t *testing.T) {
	b := New([]byte{1})
	b.U16()
	require.True(t, b.Error())
	b.ClearError()
	require.False(t, b.Error())
}
