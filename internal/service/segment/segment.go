package segment

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out utterance ids that are unique for the process lifetime.
type Generator struct {
	counter uint64
}

func New() *Generator {
	return &Generator{}
}

// Next returns "<sessionId>-turn-<n>".
func (g *Generator) Next(sessionId string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-turn-%d", sessionId, n)
}

// Count returns how many ids have been issued.
func (g *Generator) Count() uint64 {
	return atomic.LoadUint64(&g.counter)
}
