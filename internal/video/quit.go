package video

import (
	"bufio"
	"context"
	"io"
)

// DefaultQuitKey stops playback when typed on the terminal.
const DefaultQuitKey = 'q'

// WatchQuit returns a context that is cancelled when key is read from r or
// when parent ends. The reader runs in its own goroutine, so the frame loop
// only ever makes a non-blocking ctx.Err() check. End of input does not
// cancel; with stdin redirected from /dev/null playback simply runs to the
// end of the stream.
func WatchQuit(parent context.Context, r io.Reader, key byte) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		br := bufio.NewReader(r)
		for {
			b, err := br.ReadByte()
			if err != nil {
				return
			}
			if b == key {
				cancel()
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return ctx, cancel
}
