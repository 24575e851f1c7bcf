package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageLog_Evicts_Oldest_First(t *testing.T) {
	req := require.New(t)
	log := NewMessageLog(100)
	at := time.Now().UTC()

	// When 105 messages are appended to a log capped at 100
	for i := 0; i < 105; i++ {
		log.Append(NewMessageEvent("TestUser", fmt.Sprintf("Message %d", i), at))
	}

	// Then only the last 100 remain, in original order
	all := log.Last(log.Len())
	req.Equal(100, log.Len())
	req.Len(all, 100)
	req.Equal("Message 5", all[0].Content)
	req.Equal("Message 104", all[99].Content)
	for i, evt := range all {
		req.Equal(fmt.Sprintf("Message %d", i+5), evt.Content)
	}
}

func TestMessageLog_Last(t *testing.T) {
	req := require.New(t)
	log := NewMessageLog(10)
	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		log.Append(NewMessageEvent("Alice", fmt.Sprintf("m%d", i), at.Add(time.Duration(i)*time.Second)))
	}

	last := log.Last(3)
	req.Len(last, 3)
	req.Equal("m2", last[0].Content)
	req.Equal("m4", last[2].Content)

	// Asking for more than stored returns everything
	req.Len(log.Last(20), 5)
	// Non positive sizes return an empty slice
	req.Empty(log.Last(0))

	// Reading is non destructive and repeatable
	req.Equal(last, log.Last(3))
	req.Equal(5, log.Len())
}

func TestMessageLog_Last_Returns_Copy(t *testing.T) {
	req := require.New(t)
	log := NewMessageLog(2)
	log.Append(NewMessageEvent("Alice", "hello", time.Now()))

	snapshot := log.Last(1)
	snapshot[0].Content = "mutated"

	req.Equal("hello", log.Last(1)[0].Content)
}

func TestNewMessageLog_Default_Capacity(t *testing.T) {
	require.Equal(t, DefaultHistoryLimit, NewMessageLog(0).Capacity())
}
