package mailbox

import (
	"context"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"quantbrains/internal/bus"
	"quantbrains/internal/errors"
	"quantbrains/internal/schema"
	"quantbrains/pkg/exception"
)

func (c *Channel) startPoller() {
	if c.pollerCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.pollerCancel = cancel
	c.pollerDone = done

	go func() {
		defer close(done)
		c.runPoller(ctx)
	}()
}

func (c *Channel) stopPoller() {
	if c.pollerCancel == nil {
		return
	}
	c.pollerCancel()
	<-c.pollerDone
	c.pollerCancel = nil
	c.pollerDone = nil
}

func (c *Channel) runPoller(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.connected.Load() {
				continue
			}
			c.pollOnce()
		}
	}
}

// pollOnce drains every folder holding a response file. Each file becomes a
// data notification; read and delete failures become error notifications
// and never change the connection state.
func (c *Channel) pollOnce() int {
	l := c.layout.Load()
	if l == nil {
		return 0
	}

	onErr := func(op, path string, err error) {
		c.metrics.IncPollerError()
		c.publish(bus.Event{
			Header: c.header(schema.EventError, schema.SourcePoller),
			Path:   path,
			Err:    errors.Annotate(exception.ErrIO, op, path, err),
		})
	}

	drained := 0
	for _, dir := range l.dirs {
		body, path, ok := c.claim([]string{dir}, schema.SourcePoller, onErr)
		if !ok {
			continue
		}
		drained++
		logs.Infof("poller claimed response %s, size: %d", path, len(body))
		c.publish(bus.Event{
			Header:  c.header(schema.EventDataReceived, schema.SourcePoller),
			Payload: body,
			Path:    path,
		})
	}
	return drained
}
