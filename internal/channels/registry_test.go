package channels

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryRegistry_EnableDisable(t *testing.T) {
	// Given: a registry seeded with one channel
	r := NewMemoryRegistry(-100)

	// Then: the seed is enabled and others are not
	assert.True(t, r.IsEnabled(-100))
	assert.False(t, r.IsEnabled(5))

	// When: toggling
	assert.True(t, r.Enable(5))
	assert.False(t, r.Enable(5), "second enable is a no-op")
	assert.True(t, r.Disable(-100))
	assert.False(t, r.Disable(-100))

	// Then
	assert.Equal(t, []int64{5}, r.List())
}

func TestMemoryRegistry_Merge(t *testing.T) {
	r := NewMemoryRegistry(1, 2)

	assert.Equal(t, 2, r.Merge([]int64{2, 3, 4}))
	assert.Equal(t, 0, r.Merge([]int64{1}))
	assert.Equal(t, []int64{1, 2, 3, 4}, r.List())
}

func TestMemoryRegistry_OnChange(t *testing.T) {
	r := NewMemoryRegistry(1)
	var sizes []int
	r.OnChange(func(n int) { sizes = append(sizes, n) })

	r.Enable(2)
	r.Enable(2)
	r.Disable(1)
	r.Merge([]int64{7, 8})

	assert.Equal(t, []int{1, 2, 1, 3}, sizes)
}

func TestMemoryRegistry_Concurrent(t *testing.T) {
	r := NewMemoryRegistry()

	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			r.Enable(id)
		}(i)
		go func(id int64) {
			defer wg.Done()
			_ = r.IsEnabled(id)
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.List(), 50)
}
