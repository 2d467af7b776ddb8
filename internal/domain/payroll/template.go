package payroll

import (
	"fmt"
	"sort"
)

// ResolveTemplate returns the template's rules in ascending order, keeping
// only those that apply to category.
func ResolveTemplate(tpl DeductionTemplate, rules map[string]DeductionRule, category string) ([]DeductionRule, error) {
	entries, err := orderedEntries(tpl)
	if err != nil {
		return nil, err
	}
	out := make([]DeductionRule, 0, len(entries))
	for _, entry := range entries {
		rule, ok := rules[entry.RuleID]
		if !ok {
			return nil, fmt.Errorf("%w: template %s references %s", ErrRuleNotFound, tpl.ID, entry.RuleID)
		}
		if !rule.MatchesCategory(category) {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

func orderedEntries(tpl DeductionTemplate) ([]TemplateRule, error) {
	entries := make([]TemplateRule, len(tpl.Rules))
	copy(entries, tpl.Rules)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Order < entries[j].Order })
	for i := 1; i < len(entries); i++ {
		if entries[i].Order == entries[i-1].Order {
			return nil, fmt.Errorf("%w: order %d used twice in template %s", ErrDuplicateTemplateOrder, entries[i].Order, tpl.ID)
		}
	}
	return entries, nil
}

// ReorderTemplate returns a copy of tpl whose rules follow ruleIDs, numbered
// from 1. ruleIDs must name every rule of the template exactly once.
func ReorderTemplate(tpl DeductionTemplate, ruleIDs []string) (DeductionTemplate, error) {
	if len(ruleIDs) != len(tpl.Rules) {
		return DeductionTemplate{}, fmt.Errorf("%w: got %d rules, template has %d", ErrInvalidReorder, len(ruleIDs), len(tpl.Rules))
	}
	members := make(map[string]bool, len(tpl.Rules))
	for _, entry := range tpl.Rules {
		members[entry.RuleID] = false
	}
	reordered := make([]TemplateRule, 0, len(ruleIDs))
	for i, id := range ruleIDs {
		seen, ok := members[id]
		if !ok {
			return DeductionTemplate{}, fmt.Errorf("%w: %s is not in template %s", ErrInvalidReorder, id, tpl.ID)
		}
		if seen {
			return DeductionTemplate{}, fmt.Errorf("%w: %s listed twice", ErrInvalidReorder, id)
		}
		members[id] = true
		reordered = append(reordered, TemplateRule{RuleID: id, Order: i + 1})
	}
	out := tpl
	out.Rules = reordered
	return out, nil
}

// AddTemplateRule appends ruleID to a copy of tpl. A non-positive order places
// the rule after the current last entry.
func AddTemplateRule(tpl DeductionTemplate, ruleID string, order int) (DeductionTemplate, error) {
	maxOrder := 0
	for _, entry := range tpl.Rules {
		if entry.RuleID == ruleID {
			return DeductionTemplate{}, fmt.Errorf("%w: rule %s already in template %s", ErrInvalidDefinition, ruleID, tpl.ID)
		}
		if order > 0 && entry.Order == order {
			return DeductionTemplate{}, fmt.Errorf("%w: order %d already taken in template %s", ErrDuplicateTemplateOrder, order, tpl.ID)
		}
		if entry.Order > maxOrder {
			maxOrder = entry.Order
		}
	}
	if order <= 0 {
		order = maxOrder + 1
	}
	out := tpl
	out.Rules = append(append([]TemplateRule(nil), tpl.Rules...), TemplateRule{RuleID: ruleID, Order: order})
	return out, nil
}

func RemoveTemplateRule(tpl DeductionTemplate, ruleID string) (DeductionTemplate, error) {
	rules := make([]TemplateRule, 0, len(tpl.Rules))
	found := false
	for _, entry := range tpl.Rules {
		if entry.RuleID == ruleID {
			found = true
			continue
		}
		rules = append(rules, entry)
	}
	if !found {
		return DeductionTemplate{}, fmt.Errorf("%w: %s is not in template %s", ErrRuleNotFound, ruleID, tpl.ID)
	}
	out := tpl
	out.Rules = rules
	return out, nil
}
