package health

import (
	"context"
	"fmt"

	"github.com/voxbridge/voxbridge/internal/pipeline"
	"github.com/voxbridge/voxbridge/pkg/audio"
)

// EndpointChecker reports ready while the endpoint is active. A disconnected
// device fails readiness until its recovery loop reopens it.
func EndpointChecker(name string, ep audio.Endpoint) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if s := ep.State(); s != audio.StateActive {
				return fmt.Errorf("endpoint %s is %s", ep.Name(), s)
			}
			return nil
		},
	}
}

// ChannelChecker reports ready while the channel is processing. Degraded and
// closed channels fail readiness.
func ChannelChecker(name string, ch *pipeline.Channel) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			switch s := ch.State(); s {
			case pipeline.StateDegraded, pipeline.StateClosed:
				return fmt.Errorf("channel is %s", s)
			default:
				return nil
			}
		},
	}
}
