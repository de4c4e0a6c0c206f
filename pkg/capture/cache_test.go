package capture

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/httpseal/apiseal/pkg/httpmsg"
)

func request(t *testing.T, host, target string) *httpmsg.Request {
	t.Helper()
	payload := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\n\r\n", target, host)
	req, err := httpmsg.NewRequest([]byte(payload), time.Unix(1700000000, 0))
	require.NoError(t, err)
	return req
}

func TestCacheCapacityOne(t *testing.T) {
	c := NewCache(1, nil)
	a := request(t, "api.example.com", "/a")
	b := request(t, "api.example.com", "/b")

	assert.Zero(t, c.Offer("A", a))

	adm := c.Offer("B", b)
	assert.Equal(t, RejectNone, adm.Rejected)
	assert.Same(t, a, adm.Evicted)
	assert.Equal(t, "A", adm.EvictedID)

	_, ok := c.Match("A")
	assert.False(t, ok)

	got, ok := c.Match("B")
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Zero(t, c.Len())
}

func TestCacheCapacityCoerced(t *testing.T) {
	assert.Equal(t, 1, NewCache(0, nil).Capacity())
	assert.Equal(t, 1, NewCache(-5, nil).Capacity())
	assert.Equal(t, DefaultCacheSize, NewCache(DefaultCacheSize, nil).Capacity())
}

func TestCacheEvictsInAdmissionOrder(t *testing.T) {
	const capacity = 3
	c := NewCache(capacity, nil)

	var evicted []string
	for i := 0; i < 10; i++ {
		adm := c.Offer(fmt.Sprint(i), request(t, "h", "/x"))
		if adm.Evicted != nil {
			evicted = append(evicted, adm.EvictedID)
		}
		assert.LessOrEqual(t, c.Len(), capacity)
	}

	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6"}, evicted)
	for _, id := range []string{"7", "8", "9"} {
		_, ok := c.Match(id)
		assert.True(t, ok, id)
	}
}

func TestCacheReofferKeepsPosition(t *testing.T) {
	c := NewCache(2, nil)
	first := request(t, "h", "/first")
	replaced := request(t, "h", "/replaced")

	c.Offer("A", first)
	c.Offer("B", request(t, "h", "/b"))
	assert.Nil(t, c.Offer("A", replaced).Evicted)

	adm := c.Offer("C", request(t, "h", "/c"))
	assert.Equal(t, "A", adm.EvictedID)
	assert.Same(t, replaced, adm.Evicted)
}

func TestCacheMatchRemoves(t *testing.T) {
	c := NewCache(4, nil)
	c.Offer("A", request(t, "h", "/a"))

	_, ok := c.Match("A")
	assert.True(t, ok)
	_, ok = c.Match("A")
	assert.False(t, ok)
	_, ok = c.Match("unknown")
	assert.False(t, ok)
}

func TestCacheFilter(t *testing.T) {
	filter, err := NewFilter([]string{"*.example.com"}, []string{"/api/*"})
	require.NoError(t, err)
	c := NewCache(4, filter)

	tests := []struct {
		host, target string
		want         Rejection
	}{
		{"api.example.com", "/api/users?id=1", RejectNone},
		{"api.example.com", "/api/v1/users/list", RejectNone},
		{"example.org", "/api/users", RejectHost},
		{"API.EXAMPLE.COM", "/api/users", RejectHost},
		{"api.example.com", "/static/app.js", RejectURL},
		{"n/a", "/api/users", RejectHost},
	}
	for _, tt := range tests {
		t.Run(tt.host+tt.target, func(t *testing.T) {
			adm := c.Offer(tt.host+tt.target, request(t, tt.host, tt.target))
			assert.Equal(t, tt.want, adm.Rejected)
		})
	}
	assert.Equal(t, 2, c.Len())
}

func TestNewFilterInvalidPattern(t *testing.T) {
	_, err := NewFilter([]string{"[a-"}, nil)
	assert.Error(t, err)
}
