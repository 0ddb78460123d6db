package processor

import (
	"context"
	"time"

	"logflow/internal/transport"
)

// ListenAndServe binds a transport.Server on addr, wiring every received
// frame to p.HandleFrame. The returned Server's Shutdown should be called
// alongside Processor.Stop.
func (p *Processor) ListenAndServe(ctx context.Context, addr string, readTimeout time.Duration) (*transport.Server, error) {
	srv := transport.NewServer(addr, p.HandleFrame, readTimeout)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return srv, nil
}
