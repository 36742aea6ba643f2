// Package rules evaluates the declarative business rule configuration against
// case snapshots. Everything here is pure domain logic - no I/O, no side
// effects beyond logging skipped rules.
package rules

import (
	"log/slog"
	"sort"
	"time"

	"casegov/internal/record"
	"casegov/internal/rules/metrics"
)

// Evaluator interprets the rule configuration. Construction validates the
// configuration; a constructed evaluator never fails at runtime.
type Evaluator struct {
	cfg        Config
	calendar   *Calendar
	atRiskLead time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Evaluator)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

func New(cfg Config, opts ...Option) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lead, err := cfg.SLA.atRiskLead()
	if err != nil {
		return nil, err
	}
	e := &Evaluator{
		cfg:        cfg,
		calendar:   NewCalendar(cfg.SLA.Holidays),
		atRiskLead: lead,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// rulesOfKind returns active rules of one kind in declaration order.
func (e *Evaluator) rulesOfKind(kind Kind) []Rule {
	var out []Rule
	for _, r := range e.cfg.Rules {
		if r.Kind == kind && r.Active {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// ruleMatches evaluates a rule's conditions (AND). A condition that cannot
// evaluate skips the whole rule: matched=false, skipped=true.
func (e *Evaluator) ruleMatches(rule Rule, snapshot record.Case) (matched, skipped bool) {
	for _, cond := range rule.Conditions {
		ok, err := evalCondition(cond, snapshot)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("rule evaluation skipped",
					"rule_id", rule.ID,
					"case_id", snapshot.ID,
					"field", cond.Field,
					"error", err,
				)
			}
			e.metrics.IncrementSkipped(rule.ID)
			return false, true
		}
		if !ok {
			return false, false
		}
	}
	return true, false
}

// EvaluateFieldRequirements returns the union of required fields across all
// matching field-requirement rules (logical OR per field).
func (e *Evaluator) EvaluateFieldRequirements(snapshot record.Case) map[string]bool {
	e.metrics.IncrementEvaluation("field_requirements")
	required := make(map[string]bool)
	for _, rule := range e.rulesOfKind(KindFieldRequirement) {
		matched, _ := e.ruleMatches(rule, snapshot)
		if !matched {
			continue
		}
		for _, f := range rule.RequiredFields {
			required[f] = true
		}
	}
	return required
}

// EvaluateVisibleActions runs the ordered visibility rule list top to bottom.
// Later rules override earlier ones for the same action id (last-write-wins);
// that ordering is stable and part of the contract. The result is sorted for
// deterministic output.
func (e *Evaluator) EvaluateVisibleActions(snapshot record.Case) []string {
	e.metrics.IncrementEvaluation("visible_actions")
	visible := make(map[string]bool)
	for _, rule := range e.rulesOfKind(KindActionVisibility) {
		matched, _ := e.ruleMatches(rule, snapshot)
		if !matched {
			continue
		}
		visible[rule.ActionID] = rule.Effect == EffectShow
	}

	out := make([]string, 0, len(visible))
	for actionID, shown := range visible {
		if shown {
			out = append(out, actionID)
		}
	}
	sort.Strings(out)
	return out
}

// EvaluateSLA computes the due date from the service-type business-day offset
// and classifies compliance against the supplied clock. Closed cases are
// never breached.
func (e *Evaluator) EvaluateSLA(snapshot record.Case, now time.Time) SLA {
	e.metrics.IncrementEvaluation("sla")
	offset := e.cfg.SLA.offsetFor(snapshot.ServiceType)
	dueDate := e.calendar.AddBusinessDays(snapshot.CreatedAt, offset)

	status := SLAOnTrack
	switch {
	case !snapshot.IsOpen():
		status = SLAOnTrack
	case now.After(dueDate):
		status = SLABreached
	case now.After(dueDate.Add(-e.atRiskLead)):
		status = SLAAtRisk
	}
	return SLA{DueDate: dueDate, Status: status}
}

// EvaluateApproval reports whether any approval trigger matches. The first
// matching trigger in declaration order names the requirement, deterministic
// for testability. The recorded approval outcome on the snapshot, when
// present, refines the status.
func (e *Evaluator) EvaluateApproval(snapshot record.Case) Approval {
	e.metrics.IncrementEvaluation("approval")
	for _, rule := range e.rulesOfKind(KindApprovalTrigger) {
		matched, _ := e.ruleMatches(rule, snapshot)
		if !matched {
			continue
		}
		return Approval{
			Required:       true,
			Status:         approvalStatusOf(snapshot),
			TriggeringRule: rule.ID,
		}
	}
	return Approval{Required: false, Status: ApprovalNone}
}

func approvalStatusOf(snapshot record.Case) ApprovalStatus {
	switch snapshot.ApprovalStatus {
	case "Approved":
		return ApprovalApproved
	case "Rejected":
		return ApprovalRejected
	default:
		return ApprovalPending
	}
}

// Evaluate runs all four categories and assembles one Result.
func (e *Evaluator) Evaluate(snapshot record.Case, now time.Time) Result {
	return Result{
		RequiredFields: e.EvaluateFieldRequirements(snapshot),
		VisibleActions: e.EvaluateVisibleActions(snapshot),
		SLA:            e.EvaluateSLA(snapshot, now),
		Approval:       e.EvaluateApproval(snapshot),
	}
}
