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
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Reserved resumption token keys. All other keys are filter arguments of
// the request that started the list.
const (
	tokenCursor      = "c"
	tokenSize        = "s"
	tokenExpiration  = "e"
	tokenFingerprint = "h"
)

// fingerprintSize is the digest length in bytes. Tokens are not signed; the
// fingerprint only detects accidental staleness.
const fingerprintSize = 8

// ResumptionToken is part of OAI flow control (3.5). All continuation state
// lives in the token, nothing is kept on the server.
type ResumptionToken struct {
	// Args are the filter arguments of the originating request.
	Args map[string]string

	// Cursor is the offset of the page the token resumes at.
	Cursor int

	// CompleteListSize is the cardinality seen when the token was minted,
	// valid only if SizeKnown is set.
	CompleteListSize int
	SizeKnown        bool

	// Expiration is zero when the token does not expire.
	Expiration time.Time

	// Fingerprint of the backend state marker, empty if none was given.
	Fingerprint string
}

func isReserved(key string) bool {
	switch key {
	case tokenCursor, tokenSize, tokenExpiration, tokenFingerprint:
		return true
	}
	return false
}

// Empty reports a token without filter arguments and reserved fields.
func (t *ResumptionToken) Empty() bool {
	if t == nil {
		return true
	}
	for k := range t.Args {
		if !isReserved(k) {
			return false
		}
	}
	return t.Cursor == 0 && !t.SizeKnown && t.Expiration.IsZero() && t.Fingerprint == ""
}

// Encode serializes the token into its opaque string form. An empty token
// encodes to the empty string.
func (t *ResumptionToken) Encode() string {
	if t.Empty() {
		return ""
	}
	vals := url.Values{}
	for k, v := range t.Args {
		if isReserved(k) {
			continue
		}
		vals.Set(k, v)
	}
	if t.Cursor != 0 {
		vals.Set(tokenCursor, strconv.Itoa(t.Cursor))
	}
	if t.SizeKnown {
		vals.Set(tokenSize, strconv.Itoa(t.CompleteListSize))
	}
	if !t.Expiration.IsZero() {
		vals.Set(tokenExpiration, strconv.FormatInt(t.Expiration.Unix(), 10))
	}
	if t.Fingerprint != "" {
		vals.Set(tokenFingerprint, t.Fingerprint)
	}
	return base64.StdEncoding.EncodeToString([]byte(vals.Encode()))
}

// Expired reports whether the token carries an expiration before now.
func (t *ResumptionToken) Expired(now time.Time) bool {
	return !t.Expiration.IsZero() && now.After(t.Expiration)
}

// DecodeToken parses an opaque token. Every failure is reported as a
// badResumptionToken protocol error.
func DecodeToken(s string) (*ResumptionToken, error) {
	if s == "" {
		return nil, NewError(BadResumptionToken, "The resumption token is empty.")
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, NewError(BadResumptionToken, "The resumption token is not valid.")
	}
	vals, err := url.ParseQuery(string(b))
	if err != nil {
		return nil, NewError(BadResumptionToken, "The resumption token is not valid.")
	}
	t := &ResumptionToken{Args: make(map[string]string)}
	for k, vs := range vals {
		if len(vs) == 0 {
			continue
		}
		v := vs[0]
		switch k {
		case tokenCursor:
			if t.Cursor, err = strconv.Atoi(v); err != nil || t.Cursor < 0 {
				return nil, NewError(BadResumptionToken, "The resumption token has an invalid cursor.")
			}
		case tokenSize:
			if t.CompleteListSize, err = strconv.Atoi(v); err != nil || t.CompleteListSize < 0 {
				return nil, NewError(BadResumptionToken, "The resumption token has an invalid list size.")
			}
			t.SizeKnown = true
		case tokenExpiration:
			epoch, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, NewError(BadResumptionToken, "The resumption token has an invalid expiration.")
			}
			t.Expiration = time.Unix(epoch, 0).UTC()
		case tokenFingerprint:
			t.Fingerprint = v
		default:
			t.Args[k] = v
		}
	}
	return t, nil
}

// Fingerprint returns a short hex digest of a backend state marker, e.g. a
// last modification date combined with a count. An empty marker yields an
// empty fingerprint.
func Fingerprint(state string) string {
	if state == "" {
		return ""
	}
	h, err := blake2b.New(fingerprintSize, nil)
	if err != nil {
		// Only fails for sizes outside 1..64 or oversized keys.
		panic(err)
	}
	h.Write([]byte(state))
	return hex.EncodeToString(h.Sum(nil))
}
