// Package filter decides whether a requested model may be used against an upstream
// vendor, based on the CUSTOM_MODELS rule string.
//
// The rule string is a comma separated list evaluated left to right, the last
// matching rule wins:
//
//	-all                 disable every model
//	+all                 enable every model
//	-name                disable name
//	+name, name          enable name
//	name@provider        scope the rule to one provider (case-insensitive)
//	name=Display         carry a display alias
//
// A model that no rule mentions is available.
package filter

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedBody is returned when a request body is not valid JSON.
var ErrMalformedBody = errors.New("request body is not valid JSON")

// byteDance matches on display aliases as well, because its endpoints are opaque IDs.
const byteDance = "bytedance"

// Rule is one parsed entry of the rule string.
type Rule struct {
	All      bool
	Enable   bool
	Name     string
	Provider string
	Display  string
}

// ParseRules splits a rule string. Empty entries are skipped.
func ParseRules(custom string) []Rule {
	var rules []Rule
	for _, raw := range strings.Split(custom, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		rule := Rule{Enable: true}
		switch entry[0] {
		case '-':
			rule.Enable = false
			entry = entry[1:]
		case '+':
			entry = entry[1:]
		}
		if entry == "all" {
			rule.All = true
			rules = append(rules, rule)
			continue
		}
		full, display, _ := strings.Cut(entry, "=")
		rule.Display = strings.TrimSpace(display)
		rule.Name, rule.Provider = SplitModelProvider(strings.TrimSpace(full))
		if rule.Name == "" {
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

// SplitModelProvider splits "name@provider" at the last '@'.
func SplitModelProvider(full string) (name, provider string) {
	i := strings.LastIndex(full, "@")
	if i < 0 {
		return full, ""
	}
	return full[:i], strings.ToLower(full[i+1:])
}

// IsModelNotAvailable reports whether model is unavailable for every given provider.
// An empty model name is never filtered.
func IsModelNotAvailable(custom, model string, providers ...string) bool {
	if model == "" || strings.TrimSpace(custom) == "" {
		return false
	}
	rules := ParseRules(custom)
	for _, p := range providers {
		if available(rules, model, strings.ToLower(p)) {
			return false
		}
	}
	return true
}

func available(rules []Rule, model, provider string) bool {
	ok := true
	for _, r := range rules {
		if r.All {
			ok = r.Enable
			continue
		}
		if r.Provider != "" && r.Provider != provider {
			continue
		}
		if r.Name == model || (provider == byteDance && r.Display == model) {
			ok = r.Enable
		}
	}
	return ok
}

// ModelFromBody extracts the top-level "model" string of a JSON body.
func ModelFromBody(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", ErrMalformedBody
	}
	return gjson.GetBytes(body, "model").String(), nil
}
