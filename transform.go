//  Copyright 2015 by Leipzig University Library, http://ub.uni-leipzig.de
//                    The Finc Authors, http://finc.info
//                    Martin Czygan, <martin.czygan@uni-leipzig.de>
//
// This file is part of some open source application.
//
// Some open source application is free software: you can redistribute
// it and/or modify it under the terms of the GNU General Public
// License as published by the Free Software Foundation, either
// version 3 of the License, or (at your option) any later version.
//
// Some open source application is distributed in the hope that it will
// be useful, but WITHOUT ANY WARRANTY; without even the implied warranty
// of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Foobar.  If not, see <http://www.gnu.org/licenses/>.
//
// @license GPL-3.0+ <http://spdx.org/licenses/GPL-3.0+>
//
package oairepo

import (
	"fmt"
	"strings"
)

// RuleKind names a string transformation.
type RuleKind string

const (
	RuleReplace RuleKind = "replace"
	RulePrefix  RuleKind = "prefix"
	RuleSuffix  RuleKind = "suffix"
	RuleCase    RuleKind = "case"
)

// Rule is a single transformation step, e.g. {prefix [del oai:]}.
type Rule struct {
	Kind RuleKind
	Args []string
}

func (r Rule) validate() error {
	switch r.Kind {
	case RuleReplace:
		if len(r.Args) != 2 {
			return fmt.Errorf("replace takes [find, with], got %d args", len(r.Args))
		}
	case RulePrefix, RuleSuffix:
		if len(r.Args) != 2 {
			return fmt.Errorf("%s takes [add|del, value], got %d args", r.Kind, len(r.Args))
		}
		if r.Args[0] != "add" && r.Args[0] != "del" {
			return fmt.Errorf("%s action must be add or del, got %q", r.Kind, r.Args[0])
		}
	case RuleCase:
		if len(r.Args) != 1 {
			return fmt.Errorf("case takes [upper|lower], got %d args", len(r.Args))
		}
		if r.Args[0] != "upper" && r.Args[0] != "lower" {
			return fmt.Errorf("case must be upper or lower, got %q", r.Args[0])
		}
	default:
		return fmt.Errorf("unknown rule %q", r.Kind)
	}
	return nil
}

// apply runs the rule forward, or inverted when reverse is set.
func (r Rule) apply(s string, reverse bool) string {
	switch r.Kind {
	case RuleReplace:
		find, with := r.Args[0], r.Args[1]
		if reverse {
			find, with = with, find
		}
		return strings.ReplaceAll(s, find, with)
	case RulePrefix:
		if flip(r.Args[0], reverse) == "add" {
			return r.Args[1] + s
		}
		return strings.TrimPrefix(s, r.Args[1])
	case RuleSuffix:
		if flip(r.Args[0], reverse) == "add" {
			return s + r.Args[1]
		}
		return strings.TrimSuffix(s, r.Args[1])
	case RuleCase:
		if flip(r.Args[0], reverse) == "upper" {
			return strings.ToUpper(s)
		}
		return strings.ToLower(s)
	}
	return s
}

func flip(action string, reverse bool) string {
	if !reverse {
		return action
	}
	switch action {
	case "add":
		return "del"
	case "del":
		return "add"
	case "upper":
		return "lower"
	case "lower":
		return "upper"
	}
	return action
}

// Transform maps public identifiers to backend local ids and back through
// an ordered list of rules. Reversing is not guaranteed to restore the
// original value, e.g. after a case rule.
type Transform []Rule

// ParseRules builds a transform from its configuration form, a list of
// single key maps:
//
//	- prefix: [del, "oai:example.org:"]
//	- replace: ["_", ":"]
func ParseRules(raw []map[string][]string) (Transform, error) {
	var t Transform
	for i, m := range raw {
		if len(m) != 1 {
			return nil, fmt.Errorf("rule %d: want exactly one rule type, got %d", i, len(m))
		}
		for k, args := range m {
			rule := Rule{Kind: RuleKind(k), Args: args}
			if err := rule.validate(); err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			t = append(t, rule)
		}
	}
	return t, nil
}

// Forward applies the rules in order.
func (t Transform) Forward(s string) string {
	for _, r := range t {
		s = r.apply(s, false)
	}
	return s
}

// Reverse applies the inverted rules in reverse order.
func (t Transform) Reverse(s string) string {
	for i := len(t) - 1; i >= 0; i-- {
		s = t[i].apply(s, true)
	}
	return s
}

// String renders the rules for logs.
func (t Transform) String() string {
	parts := make([]string, len(t))
	for i, r := range t {
		parts[i] = fmt.Sprintf("%s%v", r.Kind, r.Args)
	}
	return strings.Join(parts, " | ")
}
