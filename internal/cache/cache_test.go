package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSetRoundTrip(t *testing.T) {
	c := New(5 * time.Minute)
	c.Set("stats:bca:semester=2", 42)

	got, ok := c.Get("stats:bca:semester=2")
	assert.True(t, ok)
	assert.Equal(t, 42, got)

	_, ok = c.Get("stats:bca:semester=3")
	assert.False(t, ok)
}

func TestExpiredEntryEvictedOnLookup(t *testing.T) {
	c := New(5 * time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("register:bca:semester=2|subject=dbms", "grid")

	c.now = func() time.Time { return base.Add(5*time.Minute + time.Second) }
	_, ok := c.Get("register:bca:semester=2|subject=dbms")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry should be evicted, not retained")
}

func TestEntryInsideTTLSurvives(t *testing.T) {
	c := New(5 * time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("k", "v")

	c.now = func() time.Time { return base.Add(4 * time.Minute) }
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestInvalidatePrefix(t *testing.T) {
	c := New(time.Minute)
	c.Set("register:bca:semester=2|subject=dbms", 1)
	c.Set("register:bca:semester=4|subject=os", 2)
	c.Set("register:mca:semester=2|subject=dbms", 3)
	c.Set("stats:bca:semester=2", 4)

	removed := c.InvalidatePrefix("register:bca:")
	assert.Equal(t, 2, removed)

	_, ok := c.Get("register:mca:semester=2|subject=dbms")
	assert.True(t, ok, "other streams must survive")
	_, ok = c.Get("stats:bca:semester=2")
	assert.True(t, ok, "other logical prefixes untouched by a raw prefix call")
}

func TestInvalidateStreamIsCoarse(t *testing.T) {
	c := New(time.Minute)
	c.Set(Key(PrefixRegister, "BCA", map[string]string{"semester": "2", "subject": "DBMS"}), 1)
	c.Set(Key(PrefixStats, "BCA", map[string]string{"semester": "2"}), 2)
	c.Set(Key(PrefixAttendance, "BCA", map[string]string{"semester": "2", "subject": "DBMS", "date": "2025-01-10"}), 3)
	c.Set(Key(PrefixRegister, "MCA", map[string]string{"semester": "2", "subject": "DBMS"}), 4)

	removed := c.InvalidateStream("bca")
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, c.Len())
}

func TestKeyIsCanonical(t *testing.T) {
	a := Key(PrefixRegister, "BCA", map[string]string{"subject": "DBMS", "semester": "2"})
	b := Key(PrefixRegister, "bca", map[string]string{"semester": "2", "subject": "dbms"})
	assert.Equal(t, a, b, "identical queries must hash to the same key")
	assert.Equal(t, "register:bca:semester=2|subject=dbms", a)
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("stats:s%d:semester=%d", n, j%4)
				c.Set(key, j)
				c.Get(key)
				if j%50 == 0 {
					c.InvalidateStream(fmt.Sprintf("s%d", n))
				}
			}
		}(i)
	}
	wg.Wait()
}
