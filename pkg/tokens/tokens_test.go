package tokens

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/tiktoken-go"
)

func TestEstimate(t *testing.T) {
	require.Equal(t, 0, Estimate(""))
	require.Equal(t, 1, Estimate("a"))
	require.Equal(t, 1, Estimate("abcd"))
	require.Equal(t, 2, Estimate("abcde"))
}

func TestCounterFunc(t *testing.T) {
	var c Counter = CounterFunc(func(s string) int { return len(s) * 2 })
	require.Equal(t, 6, c.Count("abc"))
}

func TestTiktoken_UnknownEncodingFallsBack(t *testing.T) {
	c := NewTiktoken("no-such-encoding")
	require.Equal(t, 0, c.Count(""))
	require.Equal(t, Estimate("hello world"), c.Count("hello world"))

	select {
	case <-c.Warm():
	case <-time.After(5 * time.Second):
		t.Fatal("unknown encoding did not finish loading")
	}
	require.Equal(t, Estimate("hello world"), c.Count("hello world"))
}

func TestTiktoken_CountDoesNotWaitForSlowLoad(t *testing.T) {
	unblock := make(chan struct{})
	c := newTiktoken("", func(string) (*tiktoken.Tiktoken, error) {
		<-unblock
		return nil, errors.New("network unreachable")
	})

	counted := make(chan int, 1)
	go func() { counted <- c.Count("some text to count") }()
	select {
	case n := <-counted:
		require.Equal(t, Estimate("some text to count"), n)
	case <-time.After(2 * time.Second):
		t.Fatal("Count blocked on the encoding load")
	}

	close(unblock)
	<-c.Warm()
	require.Equal(t, Estimate("abcdefgh"), c.Count("abcdefgh"))
}
