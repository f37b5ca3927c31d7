package audio

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// feedInterval is how often synthetic devices push audio into their ring.
const feedInterval = 20 * time.Millisecond

// source produces the next n mono samples.
type source func(n int) []float32

// feederClip is a Clip driven by a goroutine that writes a source into the
// ring at the configured sample rate, emulating a hardware write cursor.
type feederClip struct {
	*ring
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startFeeder(clk clock.Clock, r *ring, sampleRate int, src source) *feederClip {
	c := &feederClip{
		ring: r,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	perTick := sampleRate * int(feedInterval) / int(time.Second)
	if perTick < 1 {
		perTick = 1
	}

	go func() {
		defer close(c.done)
		ticker := clk.Ticker(feedInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				if err := c.write(src(perTick)); err != nil {
					return
				}
			}
		}
	}()
	return c
}

func (c *feederClip) Close() error {
	c.once.Do(func() {
		c.halt()
		close(c.stop)
		<-c.done
	})
	return nil
}
