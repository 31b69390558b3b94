package channelbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	bus := New()
	var got string
	bus.Subscribe("leasehold:bootstrap", func(payload interface{}) { got = payload.(string) })

	bus.Publish("leasehold:bootstrap", "ok")
	require.Equal(t, "ok", got)
}

func TestCallWithoutHandlerReturnsConfigError(t *testing.T) {
	bus := New()
	_, err := bus.Call("postTransaction", nil)
	require.Error(t, err)
}

func TestHandleAndCallRoundTrip(t *testing.T) {
	bus := New()
	bus.Handle("getLastBlock", func(args interface{}) (interface{}, error) {
		return "block-1", nil
	})

	result, err := bus.Call("getLastBlock", nil)
	require.NoError(t, err)
	require.Equal(t, "block-1", result)
	require.Contains(t, bus.Actions(), "getLastBlock")
}
