package transport

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbrelay/dbrelay/protocol"
)

func TestPipe_RequestsDeliveredInSendOrder(t *testing.T) {
	conn, endpoint := Pipe()

	for i := 0; i < 10; i++ {
		err := conn.Send(protocol.Request{Type: protocol.RequestQuery, SQL: fmt.Sprintf("stmt-%d", i)})
		require.NoError(t, err)
	}

	for i := 0; i < 10; i++ {
		req, ok := endpoint.Receive()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("stmt-%d", i), req.SQL)
	}
}

func TestPipe_ResponsesDeliveredInSendOrder(t *testing.T) {
	conn, endpoint := Pipe()

	keys := []protocol.Key{"a", "b", "c"}
	for _, key := range keys {
		require.NoError(t, endpoint.Send(protocol.SuccessResponse(key)))
	}

	for _, key := range keys {
		resp, ok := conn.Receive()
		require.True(t, ok)
		assert.Equal(t, key, resp.Key)
	}
}

func TestPipe_SendNeverBlocks(t *testing.T) {
	conn, _ := Pipe()

	// Nothing is receiving; sends must still complete immediately.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = conn.Send(protocol.Request{Type: protocol.RequestQuery})
		}
	}()
	<-done
}

func TestPipe_SendAfterCloseReturnsErrDetached(t *testing.T) {
	conn, endpoint := Pipe()
	require.NoError(t, conn.Close())

	assert.ErrorIs(t, conn.Send(protocol.Request{Type: protocol.RequestQuery}), ErrDetached)
	assert.ErrorIs(t, endpoint.Send(protocol.SuccessResponse("k")), ErrDetached)
}

func TestPipe_CloseDrainsRemainingMessages(t *testing.T) {
	conn, endpoint := Pipe()

	require.NoError(t, conn.Send(protocol.Request{Type: protocol.RequestQuery, SQL: "last"}))
	require.NoError(t, conn.Close())

	req, ok := endpoint.Receive()
	require.True(t, ok, "message sent before close should still be delivered")
	assert.Equal(t, "last", req.SQL)

	_, ok = endpoint.Receive()
	assert.False(t, ok, "receive after drain on a closed pipe should report detachment")
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	q := newQueue[int]()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(j)
			}
		}()
	}
	wg.Wait()

	count := 0
	for {
		_, ok := q.Dequeue()
		if !ok {
			break
		}
		count++
		if count == 800 {
			q.Close()
		}
	}
	assert.Equal(t, 800, count)
}

func TestQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := newQueue[string]()

	got := make(chan string, 1)
	go func() {
		if v, ok := q.Dequeue(); ok {
			got <- v
		}
	}()

	q.Enqueue("wake")
	assert.Equal(t, "wake", <-got)
}
