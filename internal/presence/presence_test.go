package presence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeEndpoint struct {
	received [][]byte
}

func (f *fakeEndpoint) Push(event []byte) bool {
	f.received = append(f.received, event)
	return true
}

func TestSendDropsWhenOffline(t *testing.T) {
	r := New()
	require.False(t, r.IsOnline(1))
	r.Send(1, []byte("hello")) // must not panic
}

func TestRegisterLookupDeregister(t *testing.T) {
	r := New()
	ep := &fakeEndpoint{}
	r.Register(1, ep)
	require.True(t, r.IsOnline(1))

	r.Send(1, []byte("hi"))
	require.Len(t, ep.received, 1)

	r.Deregister(1)
	require.False(t, r.IsOnline(1))
}

func TestSendManyExcept(t *testing.T) {
	r := New()
	a, b, c := &fakeEndpoint{}, &fakeEndpoint{}, &fakeEndpoint{}
	r.Register(1, a)
	r.Register(2, b)
	r.Register(3, c)

	r.SendManyExcept([]uint32{1, 2, 3}, []byte("evt"), 2)
	require.Len(t, a.received, 1)
	require.Len(t, b.received, 0)
	require.Len(t, c.received, 1)
}
