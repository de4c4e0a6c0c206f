// Package capture correlates the requests and responses of a capture stream
// and hands every matched session to a set of sinks.
package capture

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/httpseal/apiseal/pkg/httpmsg"
)

// DefaultCacheSize is the number of pending requests kept by default.
const DefaultCacheSize = 128

// Admission is the outcome of offering a request to the cache.
type Admission struct {
	Rejected Rejection
	// Evicted is the oldest pending request, dropped to make room.
	Evicted   *httpmsg.Request
	EvictedID string
}

// Cache holds requests waiting for their response. It is bounded and evicts
// in admission order; nothing expires by time. Not safe for concurrent use.
type Cache struct {
	capacity int
	filter   *Filter
	pending  *orderedmap.OrderedMap[string, *httpmsg.Request]
}

// NewCache creates a cache. Capacities below one are raised to one; a nil
// filter admits everything.
func NewCache(capacity int, filter *Filter) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		filter:   filter,
		pending:  orderedmap.New[string, *httpmsg.Request](),
	}
}

// Capacity returns the maximum number of pending requests.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Len returns the number of pending requests.
func (c *Cache) Len() int {
	return c.pending.Len()
}

// Offer filters req and stores it under id. A request re-offered under a
// pending id replaces the old one and keeps its place in line.
func (c *Cache) Offer(id string, req *httpmsg.Request) Admission {
	if r := c.filter.Check(req); r != RejectNone {
		return Admission{Rejected: r}
	}

	c.pending.Set(id, req)

	var adm Admission
	if c.pending.Len() > c.capacity {
		oldest := c.pending.Oldest()
		adm.EvictedID, adm.Evicted = oldest.Key, oldest.Value
		c.pending.Delete(oldest.Key)
	}
	return adm
}

// Match removes and returns the request pending under id.
func (c *Cache) Match(id string) (*httpmsg.Request, bool) {
	return c.pending.Delete(id)
}
