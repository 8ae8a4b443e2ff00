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
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoSize bounds the number of lookups remembered during a single call.
const memoSize = 1024

// memo remembers repeated collaborator lookups for the duration of one
// Process call. It must never outlive the call.
type memo struct {
	Data
	cache *lru.Cache[string, interface{}]
}

func newMemo(d Data) *memo {
	cache, err := lru.New[string, interface{}](memoSize)
	if err != nil {
		// Only fails for a non-positive size.
		panic(err)
	}
	return &memo{Data: d, cache: cache}
}

func (m *memo) Identify(ctx context.Context) (*Identify, error) {
	const key = "identify"
	if v, ok := m.cache.Get(key); ok {
		return v.(*Identify), nil
	}
	v, err := m.Data.Identify(ctx)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, v)
	return v, nil
}

func (m *memo) IsValidIdentifier(ctx context.Context, identifier string) (bool, error) {
	key := "valid:" + identifier
	if v, ok := m.cache.Get(key); ok {
		return v.(bool), nil
	}
	v, err := m.Data.IsValidIdentifier(ctx, identifier)
	if err != nil {
		return false, err
	}
	m.cache.Add(key, v)
	return v, nil
}

func (m *memo) MetadataFormats(ctx context.Context, identifier string) ([]MetadataFormat, error) {
	key := "formats:" + identifier
	if v, ok := m.cache.Get(key); ok {
		return v.([]MetadataFormat), nil
	}
	v, err := m.Data.MetadataFormats(ctx, identifier)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, v)
	return v, nil
}

func (m *memo) RecordHeader(ctx context.Context, identifier string) (*RecordHeader, error) {
	key := "header:" + identifier
	if v, ok := m.cache.Get(key); ok {
		return v.(*RecordHeader), nil
	}
	v, err := m.Data.RecordHeader(ctx, identifier)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, v)
	return v, nil
}

// RecordHeaders uses the bulk variant of the wrapped collaborator if there
// is one and remembers each header.
func (m *memo) RecordHeaders(ctx context.Context, identifiers []string) ([]RecordHeader, error) {
	if _, ok := m.Data.(HeaderBatcher); !ok {
		hs := make([]RecordHeader, len(identifiers))
		for i, id := range identifiers {
			h, err := m.RecordHeader(ctx, id)
			if err != nil {
				return nil, err
			}
			hs[i] = *h
		}
		return hs, nil
	}
	hs, err := recordHeaders(ctx, m.Data, identifiers)
	if err != nil {
		return nil, err
	}
	for i := range hs {
		h := hs[i]
		m.cache.Add("header:"+h.Identifier, &h)
	}
	return hs, nil
}
