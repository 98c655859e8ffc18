package policy

import "encoding/json"

// Result is the outcome of evaluating one policy against its parameters.
type Result struct {
	// Pass is false when the account should be locked.
	Pass bool
	// Data is optional diagnostic output recorded on the account when it is locked.
	Data json.RawMessage
}

// Policy is a named predicate over an account's policy configuration.
// Evaluate receives the parameters configured for the policy's name, which
// may be empty. Implementations must not have side effects.
type Policy interface {
	Name() string
	Evaluate(params json.RawMessage) Result
}

// Func adapts an ordinary function to the evaluation half of Policy.
type Func func(params json.RawMessage) Result

// Evaluate calls f(params).
func (f Func) Evaluate(params json.RawMessage) Result {
	return f(params)
}

type namedFunc struct {
	name string
	Func
}

func (n namedFunc) Name() string {
	return n.name
}

// Named returns a Policy called name that evaluates with fn.
func Named(name string, fn Func) Policy {
	return namedFunc{name: name, Func: fn}
}
