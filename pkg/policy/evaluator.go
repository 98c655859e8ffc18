package policy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
)

// Outcome pairs a policy name with its result.
type Outcome struct {
	Name   string
	Result Result
}

// Evaluation is the result of running the registry against one account.
type Evaluation struct {
	// Compliant is true when every evaluated policy passed.
	Compliant bool
	// Outcomes lists each evaluated policy in registration order, followed by
	// a failing outcome for every unrecognized name.
	Outcomes []Outcome
	// NonCompliant is the first failing outcome, or nil.
	NonCompliant *Outcome
	// Unrecognized lists configured policy names with no registered policy, sorted.
	Unrecognized []string
}

// Evaluator holds the registered policies. Registration is closed once the
// evaluator has been used, so every evaluation sees the same registry.
// It is safe for concurrent use.
type Evaluator struct {
	mu       sync.RWMutex
	policies []Policy
	byName   map[string]Policy
	frozen   bool
}

// NewEvaluator creates an evaluator with the given policies registered.
func NewEvaluator(policies ...Policy) (*Evaluator, error) {
	e := &Evaluator{byName: make(map[string]Policy)}
	if err := e.Register(policies...); err != nil {
		return nil, err
	}
	return e, nil
}

// Register adds policies in order. Either all are added or none are.
func (e *Evaluator) Register(policies ...Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frozen {
		return ErrRegistryFrozen
	}

	seen := make(map[string]bool, len(policies))
	for _, p := range policies {
		if p == nil {
			return fmt.Errorf("%w: nil policy", ErrInvalidPolicy)
		}
		name := p.Name()
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty name (%T)", ErrInvalidPolicy, p)
		}
		if _, ok := e.byName[name]; ok || seen[name] {
			return fmt.Errorf("%w: %s", ErrDuplicatePolicy, name)
		}
		seen[name] = true
	}

	for _, p := range policies {
		e.policies = append(e.policies, p)
		e.byName[p.Name()] = p
	}
	return nil
}

// Lookup returns the registered policy called name.
func (e *Evaluator) Lookup(name string) (Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.byName[name]
	return p, ok
}

// Names returns the registered policy names in registration order.
func (e *Evaluator) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, len(e.policies))
	for i, p := range e.policies {
		names[i] = p.Name()
	}
	return names
}

// Recognizes reports whether name is registered and attached to the account's
// policy configuration.
func (e *Evaluator) Recognizes(account *model.Account, name string) bool {
	if account == nil || !account.HasPolicy(name) {
		return false
	}
	_, ok := e.Lookup(name)
	return ok
}

// Evaluate runs every registered policy named in the account's configuration.
// All of them run even after one fails. A configured name with no registered
// policy fails.
func (e *Evaluator) Evaluate(account *model.Account) Evaluation {
	e.mu.Lock()
	e.frozen = true
	policies := e.policies
	e.mu.Unlock()

	eval := Evaluation{Compliant: true}
	if account == nil || len(account.Policies) == 0 {
		return eval
	}

	for _, p := range policies {
		params, ok := account.Policies[p.Name()]
		if !ok {
			continue
		}

		eval.Outcomes = append(eval.Outcomes, Outcome{Name: p.Name(), Result: p.Evaluate(params)})
	}

	// The registry is frozen, so byName is read without the lock.
	for name := range account.Policies {
		if _, ok := e.byName[name]; !ok {
			eval.Unrecognized = append(eval.Unrecognized, name)
		}
	}
	sort.Strings(eval.Unrecognized)
	for _, name := range eval.Unrecognized {
		eval.Outcomes = append(eval.Outcomes, Outcome{
			Name:   name,
			Result: Result{Pass: false, Data: json.RawMessage(`{"error":"policy is not registered"}`)},
		})
	}

	for i := range eval.Outcomes {
		if !eval.Outcomes[i].Result.Pass {
			eval.Compliant = false
			eval.NonCompliant = &eval.Outcomes[i]
			break
		}
	}

	return eval
}
