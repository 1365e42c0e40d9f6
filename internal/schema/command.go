package schema

// Command is a command token understood by the terminal side.
type Command string

const (
	CommandGetStatus     Command = "GET_STATUS"
	CommandGetStrategies Command = "GET_STRATEGIES"
	CommandStartStrategy Command = "START_STRATEGY"
	CommandStopStrategy  Command = "STOP_STRATEGY"
	CommandPauseStrategy Command = "PAUSE_STRATEGY"
	CommandStartAll      Command = "START_ALL"
	CommandStopAll       Command = "STOP_ALL"
	CommandPauseAll      Command = "PAUSE_ALL"
)

// CommandSeparator splits a command token from its single argument.
const CommandSeparator = "|"

// TakesStrategyID reports whether c needs a strategy id argument.
func (c Command) TakesStrategyID() bool {
	switch c {
	case CommandStartStrategy, CommandStopStrategy, CommandPauseStrategy:
		return true
	default:
		return false
	}
}

// Known reports whether c is a command the terminal understands.
func (c Command) Known() bool {
	switch c {
	case CommandGetStatus, CommandGetStrategies,
		CommandStartStrategy, CommandStopStrategy, CommandPauseStrategy,
		CommandStartAll, CommandStopAll, CommandPauseAll:
		return true
	default:
		return false
	}
}
