package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsFullBuffer(t *testing.T) {
	buf := Get()
	require.NotNil(t, buf)
	assert.Len(t, *buf, Size)
	Put(buf)
}

func TestPutIgnoresForeignBuffers(t *testing.T) {
	Put(nil)
	small := make([]byte, 10)
	Put(&small)

	for i := 0; i < 10; i++ {
		buf := Get()
		assert.Len(t, *buf, Size)
		Put(buf)
	}
}

func TestConcurrentUse(t *testing.T) {
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				buf := Get()
				(*buf)[0] = byte(j)
				Put(buf)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
