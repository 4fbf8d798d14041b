package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DispatchNotifiesListeners(t *testing.T) {
	s := NewStore()
	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })

	next := s.Dispatch(Add{Product: product("1", "10", "0", 5), Quantity: 2})

	require.Len(t, changes, 1)
	assert.Empty(t, changes[0].Prev.Items)
	assert.Equal(t, 2, changes[0].Next.ItemCount)
	assert.Equal(t, "add", changes[0].Action.Name())
	assert.True(t, changes[0].ItemsChanged())
	assert.Equal(t, 2, next.ItemCount)
	assert.Equal(t, 2, s.State().ItemCount)
}

func TestStore_ItemsChanged(t *testing.T) {
	s := NewStore()
	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })

	s.Dispatch(BeginRequest{})
	s.Dispatch(Remove{ProductID: "nope"})
	s.Dispatch(Initialize{Items: []LineItem{line("1", "2", 1, 3)}})
	s.Dispatch(Initialize{Items: []LineItem{line("1", "2.00", 1, 3)}})

	require.Len(t, changes, 4)
	assert.False(t, changes[0].ItemsChanged())
	assert.False(t, changes[1].ItemsChanged())
	assert.True(t, changes[2].ItemsChanged())
	// Equal decimals with different scale are the same value.
	assert.False(t, changes[3].ItemsChanged())
}

func TestStore_Unsubscribe(t *testing.T) {
	s := NewStore()
	var a, b int
	unsubA := s.Subscribe(func(Change) { a++ })
	s.Subscribe(func(Change) { b++ })

	s.Dispatch(Clear{})
	unsubA()
	s.Dispatch(Clear{})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestStore_ListenerMayReadState(t *testing.T) {
	s := NewStore()
	var seen int
	s.Subscribe(func(Change) { seen = s.State().ItemCount })

	s.Dispatch(Add{Product: product("1", "1", "0", 5), Quantity: 3})

	assert.Equal(t, 3, seen)
}

func TestStore_StateIsSnapshot(t *testing.T) {
	s := NewStore()
	s.Dispatch(Add{Product: product("1", "1", "0", 5), Quantity: 1})

	st := s.State()
	st.Items[0].Quantity = 99

	assert.Equal(t, 1, s.State().Items[0].Quantity)
}

func TestStore_ConcurrentDispatch(t *testing.T) {
	s := NewStore()
	var mu sync.Mutex
	var last int
	s.Subscribe(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		// Notifications arrive in dispatch order: counts never go backwards.
		assert.GreaterOrEqual(t, c.Next.ItemCount, last)
		last = c.Next.ItemCount
	})

	p := product("1", "1", "0", 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Dispatch(Add{Product: p, Quantity: 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.State().ItemCount)
	assert.Equal(t, 50, last)
}
