package utils

import (
	"math"
	"sync"
)

// HeaderCounter hands out header ids per topic. Ids start at 0 and wrap to 0
// after math.MaxUint32.
type HeaderCounter struct {
	mu   sync.Mutex
	next map[string]uint32
}

func NewHeaderCounter() *HeaderCounter {
	return &HeaderCounter{next: make(map[string]uint32)}
}

// Next 토픽별 다음 헤더 ID 반환
func (c *HeaderCounter) Next(topic string) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.next[topic]
	if id == math.MaxUint32 {
		c.next[topic] = 0
	} else {
		c.next[topic] = id + 1
	}
	return id
}
