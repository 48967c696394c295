package session

import (
	"context"
	"log/slog"

	"shaperd/internal/config"
)

type callOp int

const (
	opApply callOp = iota
	opDisable
	opStatus
)

func (op callOp) String() string {
	switch op {
	case opApply:
		return "apply"
	case opDisable:
		return "disable"
	case opStatus:
		return "status"
	default:
		return "unknown"
	}
}

// callRequest is one gateway invocation scheduled by the controller loop. The
// closures run back on the loop when the result arrives, and only when the
// generation still matches, so they may touch controller state freely.
type callRequest struct {
	gen   uint64
	op    callOp
	iface string
	down  int
	up    int

	onSuccess func()
	onFailure func(err error)
	onStatus  func(enabled bool)
}

// worker drains the call channel and executes gateway invocations off the
// event loop. At most one request is ever queued, which is what keeps a single
// privileged call in flight.
func (c *Controller) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.calls:
			res := callResult{req: req}
			switch req.op {
			case opApply:
				res.err = c.gateway.Apply(ctx, req.iface, req.down, req.up)
			case opDisable:
				res.err = c.gateway.Disable(ctx, req.iface)
			case opStatus:
				status, err := c.gateway.CheckStatus(ctx, req.iface)
				res.err = err
				res.status = status.Enabled
			}
			c.Post(res)
		}
	}
}

// submit hands a request to the worker, or parks it when a call is already in
// flight. A parked request is replaced by any newer one: only the latest
// pending command survives, matching latest-wins queueing.
func (c *Controller) submit(req callRequest) {
	req.gen = c.gen
	if c.inflight {
		c.pendingCall = &req
		return
	}
	c.inflight = true
	c.calls <- req
}

func (c *Controller) handleCallResult(res callResult) {
	c.inflight = false
	if next := c.pendingCall; next != nil {
		c.pendingCall = nil
		c.inflight = true
		c.calls <- *next
	}

	if res.req.gen != c.gen {
		c.logger.Debug("discarding stale gateway result",
			slog.String("op", res.req.op.String()),
			slog.Uint64("result_gen", res.req.gen),
			slog.Uint64("current_gen", c.gen))
		return
	}

	if res.err != nil {
		if res.req.onFailure != nil {
			res.req.onFailure(res.err)
		}
		return
	}
	if res.req.op == opStatus {
		if res.req.onStatus != nil {
			res.req.onStatus(res.status)
		}
		return
	}
	if res.req.onSuccess != nil {
		res.req.onSuccess()
	}
}

func (c *Controller) submitApply(iface string, preset config.Preset, onSuccess func(), onFailure func(error)) {
	c.submit(callRequest{
		op:        opApply,
		iface:     iface,
		down:      preset.DownMbps,
		up:        preset.UpMbps,
		onSuccess: onSuccess,
		onFailure: onFailure,
	})
}

func (c *Controller) submitDisable(iface string, onSuccess func(), onFailure func(error)) {
	c.submit(callRequest{
		op:        opDisable,
		iface:     iface,
		onSuccess: onSuccess,
		onFailure: onFailure,
	})
}

func (c *Controller) submitStatus(iface string, onStatus func(enabled bool)) {
	c.submit(callRequest{
		op:       opStatus,
		iface:    iface,
		onStatus: onStatus,
	})
}

// shutdownDisable is the best-effort clear on process exit. It runs directly,
// outside the loop/worker machinery, because both are winding down.
func (c *Controller) shutdownDisable(iface string) {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultGatewayCommandTimeout)
	defer cancel()
	if err := c.gateway.Disable(ctx, iface); err != nil {
		c.logger.Warn("shutdown disable failed",
			slog.String("iface", iface),
			slog.String("error", err.Error()))
	}
}
