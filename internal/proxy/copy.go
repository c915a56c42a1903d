package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

var copyBuffers = NewBufferPool(32 * 1024)

type closeWriter interface {
	CloseWrite() error
}

// CopyBidirectional copies between client and upstream until both
// directions reach EOF, one side fails or ctx is canceled. When one
// direction finishes cleanly the write side of its destination is shut
// down so the peer sees EOF. Both connections are closed on return.
//
// It returns the number of bytes sent upstream and received from it.
func CopyBidirectional(ctx context.Context, client, upstream net.Conn) (sent, received int64, err error) {
	g, gctx := errgroup.WithContext(ctx)

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = client.Close()
			_ = upstream.Close()
		})
	}
	defer closeBoth()

	done := make(chan struct{})
	defer close(done)

	g.Go(func() error {
		n, err := copyHalf(upstream, client)
		sent = n
		return err
	})

	g.Go(func() error {
		n, err := copyHalf(client, upstream)
		received = n
		return err
	})

	// Closing both sides is what unblocks the copies on cancellation.
	go func() {
		select {
		case <-gctx.Done():
			closeBoth()
		case <-done:
		}
	}()

	err = g.Wait()
	if errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
		err = nil
	}
	return sent, received, err
}

func copyHalf(dst, src net.Conn) (int64, error) {
	buf := copyBuffers.Get()
	defer copyBuffers.Put(buf)

	n, err := io.CopyBuffer(dst, src, buf)
	if err != nil {
		return n, err
	}
	if cw, ok := dst.(closeWriter); ok {
		_ = cw.CloseWrite()
	}
	return n, nil
}
