package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClient(t *testing.T) {
	nc, err := NewNATSClient(Config{ClusterID: "test-cluster", ClientID: "truefantix"})
	require.NoError(t, err)
	assert.False(t, nc.Connected())

	// без соединения события отбрасываются
	assert.NoError(t, nc.Publish("order.created", map[string]string{"orderId": "o-1"}))
	assert.Error(t, nc.Publish("order.created", make(chan int)))

	_, err = nc.SubscribeQueue("order.created", "truefantix-consumers", nil)
	assert.Error(t, err)
	assert.NoError(t, nc.Close())
}

func TestNilClientIsNotConnected(t *testing.T) {
	var nc *NATSClient
	assert.False(t, nc.Connected())
}
