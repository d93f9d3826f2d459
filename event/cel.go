package event

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// NewCELEnv creates a CEL environment declaring every variable produced by
// Context.Vars, so custom conditions can be compiled ahead of evaluation.
func NewCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("eventType", cel.StringType),
		cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("author", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("guild", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("channel", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("message", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("attachments", cel.ListType(cel.DynType)),
		cel.Variable("mentions", cel.ListType(cel.StringType)),
		cel.Variable("voice", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("presence", cel.StringType),
		cel.Variable("now", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}
