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
	"time"

	"github.com/jinzhu/now"
)

// Granularity is the datestamp precision a repository supports.
type Granularity string

const (
	GranularityDay     Granularity = "YYYY-MM-DD"
	GranularitySeconds Granularity = "YYYY-MM-DDThh:mm:ssZ"
)

const (
	dayLayout     = "2006-01-02"
	secondsLayout = "2006-01-02T15:04:05Z"
)

var (
	ErrInvalidDatestamp = errors.New("invalid datestamp")
	ErrInvalidDateRange = errors.New("invalid date range")
)

// Valid reports whether g is one of the two granularities of OAI-PMH.
func (g Granularity) Valid() bool {
	return g == GranularityDay || g == GranularitySeconds
}

func (g Granularity) layout() string {
	if g == GranularityDay {
		return dayLayout
	}
	return secondsLayout
}

// ParseDatestamp parses a UTC datestamp in either granularity and reports
// which one was used.
func ParseDatestamp(s string) (time.Time, Granularity, error) {
	if t, err := time.Parse(dayLayout, s); err == nil {
		return t, GranularityDay, nil
	}
	if t, err := time.Parse(secondsLayout, s); err == nil {
		return t, GranularitySeconds, nil
	}
	return time.Time{}, "", ErrInvalidDatestamp
}

// FormatDatestamp renders t in UTC at the given granularity. An unknown
// granularity renders full precision.
func FormatDatestamp(g Granularity, t time.Time) string {
	return t.UTC().Format(g.layout())
}

// Window represent a span of time, from and until including. Zero values
// mean unbounded.
type Window struct {
	From  time.Time
	Until time.Time
}

// NewWindow builds a selective harvesting window from raw from and until
// arguments, either of which may be empty. An until at day granularity
// covers the whole day. Both bounds must share a granularity.
func NewWindow(from, until string) (Window, error) {
	var (
		w      Window
		fg, ug Granularity
		err    error
	)
	if from != "" {
		if w.From, fg, err = ParseDatestamp(from); err != nil {
			return w, err
		}
	}
	if until != "" {
		if w.Until, ug, err = ParseDatestamp(until); err != nil {
			return w, err
		}
		if ug == GranularityDay {
			w.Until = now.New(w.Until).EndOfDay()
		}
	}
	if fg != "" && ug != "" && fg != ug {
		return w, ErrInvalidDateRange
	}
	if !w.From.IsZero() && !w.Until.IsZero() && w.From.After(w.Until) {
		return w, ErrInvalidDateRange
	}
	return w, nil
}

// Contains reports whether t falls into the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.Until.IsZero() && t.After(w.Until) {
		return false
	}
	return true
}

// IsZero reports an unbounded window.
func (w Window) IsZero() bool {
	return w.From.IsZero() && w.Until.IsZero()
}
