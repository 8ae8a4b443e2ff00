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
	"net/url"
	"sort"
	"strings"
)

// Request is a validated OAI-PMH request. Filter fields are populated from
// literal arguments or, for resumed list requests, from the token.
type Request struct {
	Verb Verb

	// Args are the arguments as received, verb included. They are echoed
	// in the response envelope.
	Args map[string]string

	Identifier     string
	MetadataPrefix string
	From           string
	Until          string
	Set            string

	// Window is the parsed from and until range; Granularity is the
	// granularity both bounds were given in, empty without bounds.
	Window      Window
	Granularity Granularity

	// ResumptionToken is the raw token argument and Token its decoded form.
	ResumptionToken string
	Token           *ResumptionToken
	Cursor          int
}

// Resumed reports whether the request continues a list.
func (r *Request) Resumed() bool {
	return r.Token != nil
}

// ParseRequest checks args against the grammar of the requested verb. The
// checks run in a fixed order and the first failing check determines the
// error, so clients see deterministic error codes.
func ParseRequest(args map[string]string) (*Request, error) {
	name, ok := args[ArgVerb]
	if !ok {
		return nil, NewError(BadVerb, "The request does not provide any verb.")
	}
	verb, ok := ParseVerb(name)
	if !ok {
		return nil, NewError(BadVerb, "The verb '%s' provided in the request is illegal.", name)
	}
	rest := make(map[string]string, len(args))
	for k, v := range args {
		if k != ArgVerb {
			rest[k] = v
		}
	}
	g := verb.grammar()
	allowed := g.allowed()
	if len(allowed) == 0 && len(rest) > 0 {
		return nil, NewError(BadArgument, "The request includes illegal arguments.")
	}
	_, hasExclusive := rest[g.exclusive]
	if g.exclusive != "" && hasExclusive && len(rest) > 1 {
		return nil, NewError(BadArgument, "The usage of resumptionToken as an argument allows no other arguments.")
	}
	if !hasExclusive {
		var missing []string
		for _, name := range g.required {
			if _, ok := rest[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return nil, NewError(BadArgument, "The request is missing required arguments: %s.", strings.Join(missing, ", "))
		}
	}
	for _, k := range sortedKeys(rest) {
		if !g.accepts(k) {
			return nil, NewError(BadArgument, "The request includes illegal arguments; allowed: %s.", strings.Join(allowed, ", "))
		}
	}
	req := &Request{Verb: verb, Args: args}
	if err := req.parse(rest); err != nil {
		return nil, err
	}
	return req, nil
}

// parse fills the typed fields, merging arguments carried in a resumption
// token.
func (r *Request) parse(rest map[string]string) error {
	for _, k := range sortedKeys(rest) {
		if rest[k] == "" {
			return NewError(BadArgument, "The argument '%s' has an empty value.", k)
		}
	}
	filters := rest
	fromToken := false
	if raw, ok := rest[ArgResumptionToken]; ok {
		token, err := DecodeToken(raw)
		if err != nil {
			return err
		}
		g := r.Verb.grammar()
		for k := range token.Args {
			if k == g.exclusive || !g.accepts(k) {
				return NewError(BadResumptionToken, "The resumption token carries an illegal argument: %s.", k)
			}
		}
		for _, name := range g.required {
			if token.Args[name] == "" {
				return NewError(BadResumptionToken, "The resumption token is missing %s.", name)
			}
		}
		r.ResumptionToken = raw
		r.Token = token
		r.Cursor = token.Cursor
		filters = token.Args
		fromToken = true
	}
	r.Identifier = filters[ArgIdentifier]
	r.MetadataPrefix = filters[ArgMetadataPrefix]
	r.From = filters[ArgFrom]
	r.Until = filters[ArgUntil]
	r.Set = filters[ArgSet]
	if r.From == "" && r.Until == "" {
		return nil
	}
	w, err := NewWindow(r.From, r.Until)
	if err != nil {
		if fromToken {
			return NewError(BadResumptionToken, "The resumption token carries an invalid date range.")
		}
		if err == ErrInvalidDateRange {
			return NewError(BadArgument, "The from argument must be less than or equal to until, in the same granularity.")
		}
		return NewError(BadArgument, "The from and until arguments must be datestamps (YYYY-MM-DD or YYYY-MM-DDThh:mm:ssZ).")
	}
	r.Window = w
	for _, s := range []string{r.From, r.Until} {
		if s != "" {
			_, r.Granularity, _ = ParseDatestamp(s)
			break
		}
	}
	return nil
}

// filterArgs returns the arguments that select a list, for carrying in a
// resumption token.
func (r *Request) filterArgs() map[string]string {
	m := make(map[string]string)
	for k, v := range map[string]string{
		ArgMetadataPrefix: r.MetadataPrefix,
		ArgFrom:           r.From,
		ArgUntil:          r.Until,
		ArgSet:            r.Set,
	} {
		if v != "" && r.Verb.grammar().accepts(k) {
			m[k] = v
		}
	}
	return m
}

// valuesToArgs flattens query values. Repeated arguments are not allowed
// in OAI-PMH; a repeated verb is a badVerb.
func valuesToArgs(vals url.Values) (map[string]string, error) {
	if len(vals[ArgVerb]) > 1 {
		return nil, NewError(BadVerb, "The verb argument is repeated.")
	}
	args := make(map[string]string, len(vals))
	for k, vs := range vals {
		if len(vs) > 1 {
			return nil, NewError(BadArgument, "The argument '%s' is repeated.", k)
		}
		if len(vs) == 1 {
			args[k] = vs[0]
		}
	}
	return args, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the request as a query string, useful in logs.
func (r *Request) String() string {
	vals := url.Values{}
	for k, v := range r.Args {
		vals.Set(k, v)
	}
	return vals.Encode()
}
