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
	"errors"
	"fmt"
	"strings"
)

// ErrorKind enumerates the error conditions defined by OAI-PMH (3.6 Error
// and Exception Conditions).
type ErrorKind int

const (
	BadArgument ErrorKind = iota + 1
	BadResumptionToken
	BadVerb
	CannotDisseminateFormat
	IdDoesNotExist
	NoRecordsMatch
	NoMetadataFormats
	NoSetHierarchy
)

// errorKindPrefix is stripped from the kind name to derive the wire code.
const errorKindPrefix = "Err"

var errorKindNames = map[ErrorKind]string{
	BadArgument:             "ErrBadArgument",
	BadResumptionToken:      "ErrBadResumptionToken",
	BadVerb:                 "ErrBadVerb",
	CannotDisseminateFormat: "ErrCannotDisseminateFormat",
	IdDoesNotExist:          "ErrIdDoesNotExist",
	NoRecordsMatch:          "ErrNoRecordsMatch",
	NoMetadataFormats:       "ErrNoMetadataFormats",
	NoSetHierarchy:          "ErrNoSetHierarchy",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Code returns the OAI error code, e.g. "badVerb" for BadVerb.
func (k ErrorKind) Code() string {
	name := strings.TrimPrefix(k.String(), errorKindPrefix)
	if name == "" {
		return ""
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// OAIError wraps OAI error codes and messages. It is the only kind of error
// that is rendered into a response envelope.
type OAIError struct {
	Kind    ErrorKind
	Message string
}

// NewError creates a protocol error of the given kind.
func NewError(kind ErrorKind, format string, args ...interface{}) *OAIError {
	return &OAIError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error to satisfy interface.
func (e *OAIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

// Code is the wire code of the error.
func (e *OAIError) Code() string {
	return e.Kind.Code()
}

// Is reports whether target is an *OAIError of the same kind, so
// errors.Is(err, &OAIError{Kind: NoRecordsMatch}) works.
func (e *OAIError) Is(target error) bool {
	t, ok := target.(*OAIError)
	return ok && t.Kind == e.Kind
}

// AsOAIError extracts a protocol error from an error chain.
func AsOAIError(err error) (*OAIError, bool) {
	var oe *OAIError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// FaultKind separates failures of this package from failures below it.
type FaultKind int

const (
	// FaultInternal is a failure of this program: bad configuration, a
	// collaborator returning data that violates its contract, marshaling.
	FaultInternal FaultKind = iota + 1
	// FaultExternal is a failure of something we called: network, remote
	// API status codes, storage.
	FaultExternal
)

func (k FaultKind) String() string {
	switch k {
	case FaultInternal:
		return "internal"
	case FaultExternal:
		return "external"
	}
	return "unknown"
}

// Fault is a systemic failure. Faults are never rendered as OAI errors;
// the transport maps them to a server error.
type Fault struct {
	Kind    FaultKind
	Message string
	Err     error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s fault: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s fault: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Internalf returns an internal fault wrapping err, which may be nil.
func Internalf(err error, format string, args ...interface{}) *Fault {
	return &Fault{Kind: FaultInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// Externalf returns an external fault wrapping err, which may be nil.
func Externalf(err error, format string, args ...interface{}) *Fault {
	return &Fault{Kind: FaultExternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsFault extracts a fault from an error chain.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
