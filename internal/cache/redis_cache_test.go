package cache

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type label struct {
	Short string `json:"short"`
	Full  string `json:"full"`
}

func TestLocalOnlySetGet(t *testing.T) {
	cm := NewCacheManager("", "label_updates")
	defer cm.Close()
	assert.False(t, cm.IsAvailable())

	require.NoError(t, cm.Set("label:airline:DLH", label{Full: "Lufthansa"}, time.Minute))

	var got label
	found, err := cm.Get("label:airline:DLH", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Lufthansa", got.Full)

	found, err = cm.Get("label:airline:XXX", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocalOnlyExpiry(t *testing.T) {
	cm := NewCacheManager("", "")
	defer cm.Close()

	require.NoError(t, cm.Set("short", 1, 20*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	var v int
	found, err := cm.Get("short", &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidateAndDelete(t *testing.T) {
	cm := NewCacheManager("", "label_updates")
	defer cm.Close()

	require.NoError(t, cm.Set("a", "x", time.Minute))
	require.NoError(t, cm.Set("b", "y", time.Minute))
	require.NoError(t, cm.Invalidate("a"))
	require.NoError(t, cm.Delete("b"))

	var s string
	found, _ := cm.Get("a", &s)
	assert.False(t, found)
	found, _ = cm.Get("b", &s)
	assert.False(t, found)
}

func TestHandleUpdateMessageDropsLocalCopy(t *testing.T) {
	cm := NewCacheManager("", "label_updates")
	defer cm.Close()

	require.NoError(t, cm.Set("label:aircraft:A320", label{Short: "A320"}, time.Minute))
	payload, _ := json.Marshal(updateMessage{Action: "invalidate", Key: "label:aircraft:A320"})
	cm.handleUpdateMessage(string(payload))
	cm.handleUpdateMessage("not json")

	var got label
	found, err := cm.Get("label:aircraft:A320", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIncrementLocal(t *testing.T) {
	cm := NewCacheManager("", "")
	defer cm.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cm.Increment("rate_limit:1.2.3.4", 1, time.Hour)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := cm.Increment("rate_limit:1.2.3.4", 1, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(51), n)
}
