package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrCallMismatch is returned when a function call names a different call
// than the connection it arrived on.
var ErrCallMismatch = errors.New("function call names a different call")

type callIDKey struct{}

// WithCallID attaches the relay's call id to ctx.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, callIDKey{}, callID)
}

func boundCallID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(callIDKey{}).(string)
	return s
}

func argCallID(args map[string]any) string {
	for _, k := range []string{"streamsid", "call_id"} {
		if s := StringArg(args, k); s != "" {
			return s
		}
	}
	return ""
}

// CallID derives the call an audit event is logged against: the "streamsid"
// or "call_id" argument, else the id on ctx, else UnknownCallID. It must not
// be used to pick session state; see SessionID.
func CallID(ctx context.Context, args map[string]any) string {
	if s := argCallID(args); s != "" {
		return s
	}
	if s := boundCallID(ctx); s != "" {
		return s
	}
	return UnknownCallID
}

// SessionID is the call whose session a handler may read or write. The id
// bound to ctx by the relay wins; an argument naming another call is refused.
// The argument is only used when ctx carries no call id.
func SessionID(ctx context.Context, args map[string]any) (string, error) {
	bound, arg := boundCallID(ctx), argCallID(args)
	switch {
	case bound != "" && arg != "" && arg != bound:
		return "", errors.Wrapf(ErrCallMismatch, "%s", arg)
	case bound != "":
		return bound, nil
	case arg != "":
		return arg, nil
	}
	return UnknownCallID, nil
}

// StringArg reads a string argument, accepting numbers as well since agents
// are loose about JSON types.
func StringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", t))
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
