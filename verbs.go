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

import "sort"

// Verb is an OAI-PMH request type (4. Protocol Requests and Responses).
type Verb int

const (
	VerbIdentify Verb = iota + 1
	VerbGetRecord
	VerbListMetadataFormats
	VerbListSets
	VerbListIdentifiers
	VerbListRecords
)

// Argument names used in requests and resumption tokens.
const (
	ArgVerb            = "verb"
	ArgIdentifier      = "identifier"
	ArgMetadataPrefix  = "metadataPrefix"
	ArgFrom            = "from"
	ArgUntil           = "until"
	ArgSet             = "set"
	ArgResumptionToken = "resumptionToken"
)

// grammar declares the arguments a verb accepts. An exclusive argument
// must be the only argument besides the verb.
type grammar struct {
	required  []string
	optional  []string
	exclusive string
}

// allowed returns all argument names of the grammar, sorted.
func (g grammar) allowed() []string {
	var names []string
	names = append(names, g.required...)
	names = append(names, g.optional...)
	if g.exclusive != "" {
		names = append(names, g.exclusive)
	}
	sort.Strings(names)
	return names
}

func (g grammar) accepts(name string) bool {
	for _, n := range g.allowed() {
		if n == name {
			return true
		}
	}
	return false
}

var verbs = [...]struct {
	name    string
	grammar grammar
}{
	VerbIdentify: {name: "Identify"},
	VerbGetRecord: {name: "GetRecord", grammar: grammar{
		required: []string{ArgIdentifier, ArgMetadataPrefix},
	}},
	VerbListMetadataFormats: {name: "ListMetadataFormats", grammar: grammar{
		optional: []string{ArgIdentifier},
	}},
	VerbListSets: {name: "ListSets", grammar: grammar{
		exclusive: ArgResumptionToken,
	}},
	VerbListIdentifiers: {name: "ListIdentifiers", grammar: grammar{
		required:  []string{ArgMetadataPrefix},
		optional:  []string{ArgFrom, ArgUntil, ArgSet},
		exclusive: ArgResumptionToken,
	}},
	VerbListRecords: {name: "ListRecords", grammar: grammar{
		required:  []string{ArgMetadataPrefix},
		optional:  []string{ArgFrom, ArgUntil, ArgSet},
		exclusive: ArgResumptionToken,
	}},
}

// Verbs lists all supported verbs in declaration order.
func Verbs() []Verb {
	return []Verb{VerbIdentify, VerbGetRecord, VerbListMetadataFormats,
		VerbListSets, VerbListIdentifiers, VerbListRecords}
}

// ParseVerb looks up a verb by its protocol name. Names are case sensitive.
func ParseVerb(s string) (Verb, bool) {
	for _, v := range Verbs() {
		if verbs[v].name == s {
			return v, true
		}
	}
	return 0, false
}

func (v Verb) String() string {
	if v.valid() {
		return verbs[v].name
	}
	return ""
}

func (v Verb) valid() bool {
	return v >= VerbIdentify && v <= VerbListRecords
}

func (v Verb) grammar() grammar {
	return verbs[v].grammar
}

// IsList reports whether the verb is a list request, which supports flow
// control through resumption tokens (3.5).
func (v Verb) IsList() bool {
	return v.grammar().exclusive == ArgResumptionToken
}
