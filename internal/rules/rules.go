// Package rules loads the operator-supplied rule file and evaluates its
// rules against normalized messages. A rule is either a leaf matching one
// message field or a boolean combination of sub-rules.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/mailsift/mailsift/internal/core"
)

// Rule is one entry of the rule file. Exactly one of the leaf form
// (Field+pattern) or the combinator form (And/Or) is populated.
type Rule struct {
	Name  string
	Field string
	And   []*Rule
	Or    []*Rule

	// pattern matches against the named text field. For the "attachment"
	// field the rule instead carries wantAttachment.
	pattern        *regexp.Regexp
	wantAttachment bool
}

type ruleJSON struct {
	Name    string          `json:"name"`
	Field   string          `json:"field"`
	Pattern json.RawMessage `json:"pattern"`
	And     []*Rule         `json:"AND"`
	Or      []*Rule         `json:"OR"`
}

// UnmarshalJSON validates the rule shape at load time so evaluation never
// sees an unknown field or an invalid pattern.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Name = raw.Name
	r.And = raw.And
	r.Or = raw.Or

	switch {
	case raw.Field != "":
		r.Field = raw.Field
		return r.parseLeaf(raw)
	case len(raw.And) > 0, len(raw.Or) > 0:
		if raw.Pattern != nil {
			return fmt.Errorf("rules: rule %q mixes a pattern with AND/OR", raw.Name)
		}
		return nil
	default:
		return fmt.Errorf("rules: rule %q has neither a field nor AND/OR", raw.Name)
	}
}

func (r *Rule) parseLeaf(raw ruleJSON) error {
	switch raw.Field {
	case "attachment":
		if err := json.Unmarshal(raw.Pattern, &r.wantAttachment); err != nil {
			return fmt.Errorf("rules: rule %q: attachment pattern must be a boolean: %w", raw.Name, err)
		}
		return nil
	case "subject", "body_plain", "body_html":
		var expr string
		if err := json.Unmarshal(raw.Pattern, &expr); err != nil {
			return fmt.Errorf("rules: rule %q: pattern must be a string: %w", raw.Name, err)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("rules: rule %q: invalid pattern: %w", raw.Name, err)
		}
		r.pattern = re
		return nil
	default:
		return fmt.Errorf("rules: rule %q references unknown field %q", raw.Name, raw.Field)
	}
}

// Match reports whether the rule matches the record. AND short-circuits on
// the first non-matching sub-rule, OR on the first matching one.
func (r *Rule) Match(rec *core.MailRecord) (bool, error) {
	switch {
	case r.Field == "attachment":
		return r.wantAttachment == rec.HasAttachment(), nil
	case r.Field != "":
		return r.pattern.MatchString(fieldText(rec, r.Field)), nil
	case len(r.And) > 0:
		for _, sub := range r.And {
			ok, err := sub.Match(rec)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case len(r.Or) > 0:
		for _, sub := range r.Or {
			ok, err := sub.Match(rec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("rules: rule %q is empty", r.Name)
}

// Label identifies the rule in logs.
func (r *Rule) Label() string { return r.Name }

func fieldText(rec *core.MailRecord, field string) string {
	switch field {
	case "subject":
		return rec.Subject
	case "body_plain":
		return rec.BodyPlain
	case "body_html":
		return rec.BodyHTML
	}
	return ""
}

// Load reads and validates a rule file.
func Load(path string) ([]core.RuleMatcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: reading %s: %w", path, err)
	}
	var parsed []*Rule
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("rules: parsing %s: %w", path, err)
	}
	matchers := make([]core.RuleMatcher, len(parsed))
	for i, r := range parsed {
		matchers[i] = r
	}
	return matchers, nil
}
