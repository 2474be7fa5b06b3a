package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/expr"
)

// Policy decision sentinel errors. Check them with errors.Is.
var (
	// Allow ends the evaluation and permits the operation.
	Allow = errors.New("veloq/privacy: allow rule")
	// Deny ends the evaluation and rejects the operation.
	Deny = errors.New("veloq/privacy: deny rule")
	// Skip passes the decision to the next rule.
	Skip = errors.New("veloq/privacy: skip rule")
)

// Allowf returns a formatted Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

type (
	// QueryRule decides whether a query may run.
	QueryRule interface {
		EvalQuery(context.Context, veloq.Query) error
	}

	// MutationRule decides whether a mutation may run.
	MutationRule interface {
		EvalMutation(context.Context, veloq.Mutation) error
	}

	// QueryMutationRule is both a query and a mutation rule.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}

	// QueryPolicy evaluates query rules in order.
	QueryPolicy []QueryRule

	// MutationPolicy evaluates mutation rules in order.
	MutationPolicy []MutationRule
)

// QueryRuleFunc adapts a function to QueryRule.
type QueryRuleFunc func(context.Context, veloq.Query) error

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q veloq.Query) error { return f(ctx, q) }

// MutationRuleFunc adapts a function to MutationRule.
type MutationRuleFunc func(context.Context, veloq.Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m veloq.Mutation) error { return f(ctx, m) }

// AlwaysAllowRule allows every query and mutation.
func AlwaysAllowRule() QueryMutationRule { return fixedDecision{Allow} }

// AlwaysDenyRule denies every query and mutation.
func AlwaysDenyRule() QueryMutationRule { return fixedDecision{Deny} }

// ContextQueryMutationRule decides from the context alone. A nil
// decision is Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

// OnMutationOperation evaluates rule for the given operations only.
func OnMutationOperation(rule MutationRule, op veloq.Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m veloq.Mutation) error {
		if m.Op().Is(op) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule denies the given operations.
func DenyMutationOperationRule(op veloq.Op) MutationRule {
	return OnMutationOperation(MutationRuleFunc(func(_ context.Context, m veloq.Mutation) error {
		return Denyf("veloq/privacy: %s of %s is not allowed", m.Op(), m.Entity())
	}), op)
}

// AllowMutationOperationRule allows the given operations.
func AllowMutationOperationRule(op veloq.Op) MutationRule {
	return OnMutationOperation(MutationRuleFunc(func(context.Context, veloq.Mutation) error {
		return Allow
	}), op)
}

// EvalQuery returns the first decision of the rules other than Skip.
func (policies QueryPolicy) EvalQuery(ctx context.Context, q veloq.Query) error {
	for _, rule := range policies {
		if decision := rule.EvalQuery(ctx, q); decision != nil && !errors.Is(decision, Skip) {
			return decision
		}
	}
	return nil
}

// EvalMutation returns the first decision of the rules other than Skip.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m veloq.Mutation) error {
	for _, rule := range policies {
		if decision := rule.EvalMutation(ctx, m); decision != nil && !errors.Is(decision, Skip) {
			return decision
		}
	}
	return nil
}

// Policy groups query and mutation rules.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery implements veloq.Policy.
func (p Policy) EvalQuery(ctx context.Context, q veloq.Query) error {
	return p.Query.EvalQuery(ctx, q)
}

// EvalMutation implements veloq.Policy.
func (p Policy) EvalMutation(ctx context.Context, m veloq.Mutation) error {
	return p.Mutation.EvalMutation(ctx, m)
}

// Policies combines policies. An Allow from one of them ends the
// evaluation with a nil error; a decision stored with DecisionContext
// overrides all of them.
type Policies []veloq.Policy

// EvalQuery implements veloq.Policy.
func (policies Policies) EvalQuery(ctx context.Context, q veloq.Query) error {
	return policies.eval(ctx, func(p veloq.Policy) error { return p.EvalQuery(ctx, q) })
}

// EvalMutation implements veloq.Policy.
func (policies Policies) EvalMutation(ctx context.Context, m veloq.Mutation) error {
	return policies.eval(ctx, func(p veloq.Policy) error { return p.EvalMutation(ctx, m) })
}

func (policies Policies) eval(ctx context.Context, eval func(veloq.Policy) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, p := range policies {
		switch decision := eval(p); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext attaches a decision to the context that overrides every
// policy evaluated with it. Skip and nil leave the context unchanged.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext returns the decision attached to the context. An
// Allow decision is returned as nil.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct{ decision error }

func (f fixedDecision) EvalQuery(context.Context, veloq.Query) error       { return f.decision }
func (f fixedDecision) EvalMutation(context.Context, veloq.Mutation) error { return f.decision }

type contextDecision struct{ eval func(context.Context) error }

func (c contextDecision) EvalQuery(ctx context.Context, _ veloq.Query) error { return c.eval(ctx) }
func (c contextDecision) EvalMutation(ctx context.Context, _ veloq.Mutation) error {
	return c.eval(ctx)
}

// Filter narrows the rows a query reads or a bulk statement writes.
type Filter interface {
	// Where appends a predicate over the filtered entity.
	Where(expr.Predicate)
}

// Filterable is implemented by queries and bulk mutations that accept
// filters.
type Filterable interface {
	Filter() Filter
}

// FilterFunc adapts a function to a rule that filters instead of
// deciding. Operations that cannot be filtered are denied.
//
//	privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
//	    f.Where(func(p *expr.Parameter) expr.Expr {
//	        return expr.Eq(p.Field("WorkspaceID"), workspaceID)
//	    })
//	    return privacy.Skip
//	})
type FilterFunc func(context.Context, Filter) error

// EvalQuery calls f with the filter of q.
func (f FilterFunc) EvalQuery(ctx context.Context, q veloq.Query) error {
	fr, ok := q.(Filterable)
	if !ok {
		return Denyf("veloq/privacy: query of %s does not support filtering", q.Entity())
	}
	return f(ctx, fr.Filter())
}

// EvalMutation calls f with the filter of m.
func (f FilterFunc) EvalMutation(ctx context.Context, m veloq.Mutation) error {
	fr, ok := m.(Filterable)
	if !ok {
		return Denyf("veloq/privacy: %s of %s does not support filtering", m.Op(), m.Entity())
	}
	return f(ctx, fr.Filter())
}

var _ QueryMutationRule = FilterFunc(nil)
