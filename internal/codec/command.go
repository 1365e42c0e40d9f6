package codec

import (
	"strconv"
	"strings"

	"quantbrains/internal/errors"
	"quantbrains/internal/schema"
	"quantbrains/pkg/exception"
)

// EncodeCommand renders a command without arguments.
func EncodeCommand(cmd schema.Command) string {
	return string(cmd)
}

// EncodeStrategyCommand renders a command addressed to one strategy, e.g. START_STRATEGY|42.
func EncodeStrategyCommand(cmd schema.Command, id int) string {
	return string(cmd) + schema.CommandSeparator + strconv.Itoa(id)
}

// DecodeCommand splits a command file body into its token and optional argument.
func DecodeCommand(raw string) (schema.Command, string, error) {
	body := strings.TrimSpace(StripBOM(raw))
	if body == "" {
		return "", "", exception.ErrEmptyCommand
	}

	token, arg, _ := strings.Cut(body, schema.CommandSeparator)
	cmd := schema.Command(strings.TrimSpace(token))
	arg = strings.TrimSpace(arg)
	if cmd.TakesStrategyID() {
		if _, err := strconv.Atoi(arg); err != nil {
			return cmd, arg, errors.Wrapf(err, "command %s: strategy id %q", cmd, arg)
		}
	}
	return cmd, arg, nil
}
