package mailbox

import (
	"context"

	"quantbrains/internal/codec"
	"quantbrains/internal/schema"
)

// GetStrategies asks for the full strategy list.
func (c *Channel) GetStrategies(ctx context.Context) (string, error) {
	return c.Send(ctx, codec.EncodeCommand(schema.CommandGetStrategies))
}

// GetStatus asks for the account status and strategy counts.
func (c *Channel) GetStatus(ctx context.Context) (string, error) {
	return c.Send(ctx, codec.EncodeCommand(schema.CommandGetStatus))
}

// StartStrategy starts the strategy with the given id.
func (c *Channel) StartStrategy(ctx context.Context, id int) (string, error) {
	return c.Send(ctx, codec.EncodeStrategyCommand(schema.CommandStartStrategy, id))
}

// StopStrategy stops the strategy with the given id.
func (c *Channel) StopStrategy(ctx context.Context, id int) (string, error) {
	return c.Send(ctx, codec.EncodeStrategyCommand(schema.CommandStopStrategy, id))
}

// PauseStrategy pauses the strategy with the given id.
func (c *Channel) PauseStrategy(ctx context.Context, id int) (string, error) {
	return c.Send(ctx, codec.EncodeStrategyCommand(schema.CommandPauseStrategy, id))
}

// StartAll starts every strategy.
func (c *Channel) StartAll(ctx context.Context) (string, error) {
	return c.Send(ctx, codec.EncodeCommand(schema.CommandStartAll))
}

// StopAll stops every strategy.
func (c *Channel) StopAll(ctx context.Context) (string, error) {
	return c.Send(ctx, codec.EncodeCommand(schema.CommandStopAll))
}

// PauseAll pauses every strategy.
func (c *Channel) PauseAll(ctx context.Context) (string, error) {
	return c.Send(ctx, codec.EncodeCommand(schema.CommandPauseAll))
}

// Execute sends cmd, appending id for per-strategy commands.
func (c *Channel) Execute(ctx context.Context, cmd schema.Command, id int) (string, error) {
	if cmd.TakesStrategyID() {
		return c.Send(ctx, codec.EncodeStrategyCommand(cmd, id))
	}
	return c.Send(ctx, codec.EncodeCommand(cmd))
}
