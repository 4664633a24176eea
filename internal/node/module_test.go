package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/internal/eventbus"
	"github.com/dep2p/go-overlay/internal/metrics"
	"github.com/dep2p/go-overlay/internal/transport/memory"
	"github.com/dep2p/go-overlay/pkg/interfaces"
)

func TestModule_Lifecycle(t *testing.T) {
	net := memory.NewNetwork()
	ep, err := net.NewNodeEndpoint("a")
	require.NoError(t, err)

	var n *Node
	app := fxtest.New(t,
		fx.Supply(config.NewNodeConfig()),
		fx.Provide(
			func() interfaces.NodeToNode { return ep },
			func() interfaces.NodeToTracker { return net.NewTrackerClient("a", trackers) },
		),
		eventbus.Module(),
		metrics.Module(),
		Module(),
		fx.Populate(&n),
	)
	app.RequireStart()
	require.NoError(t, n.Subscribe(sp))
	assert.Equal(t, "a", n.ID().String())

	app.RequireStop()
	assert.ErrorIs(t, n.Subscribe(sp), ErrStopped)
}
