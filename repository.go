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
	"net/url"
	"time"

	"go.uber.org/zap"
)

// DefaultPageSize is the number of items per list response.
const DefaultPageSize = 100

// Config holds repository settings that are not part of the data.
type Config struct {
	// BaseURL is written into every response envelope.
	BaseURL string
	// PageSize limits the items of a list response.
	PageSize int
	// TokenTTL, if positive, makes resumption tokens expire.
	TokenTTL time.Duration
}

// withDefaults fills in zero values.
func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	return c
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger, the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// Repository answers OAI-PMH requests from a Data collaborator. It keeps no
// state between calls and is safe for concurrent use.
type Repository struct {
	data   Data
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a repository over data.
func New(data Data, config Config, opts ...Option) *Repository {
	r := &Repository{
		data:   data,
		config: config.withDefaults(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration.
func (r *Repository) Config() Config {
	return r.config
}

// builder produces the body element of a verb.
type builder func(ctx context.Context, c *call) (interface{}, error)

var builders = [...]builder{
	VerbIdentify:            buildIdentify,
	VerbGetRecord:           buildGetRecord,
	VerbListMetadataFormats: buildListMetadataFormats,
	VerbListSets:            buildListSets,
	VerbListIdentifiers:     buildListIdentifiers,
	VerbListRecords:         buildListRecords,
}

// call is the state of a single Process invocation.
type call struct {
	repo *Repository
	req  *Request
	now  time.Time
	// data memoizes lookups on base; both are dropped with the call.
	data *memo
	base Data
}

// newCall scopes the data collaborator, if it supports that, and
// memoizes lookups for the duration of one request.
func (r *Repository) newCall(req *Request, now time.Time) *call {
	base := r.data
	if s, ok := base.(Scoper); ok {
		base = s.Scope()
	}
	return &call{repo: r, req: req, now: now, data: newMemo(base), base: base}
}

// Process answers a request given as a flat argument map. Protocol errors
// are rendered into the returned response; the error return is reserved
// for faults, which carry no XML.
func (r *Repository) Process(ctx context.Context, args map[string]string) (*Response, error) {
	now := r.now().UTC()
	req, err := ParseRequest(args)
	if err != nil {
		return r.fail(now, 0, err)
	}
	if req.Token != nil && req.Token.Expired(now) {
		return r.fail(now, req.Verb, NewError(BadResumptionToken, "The resumption token has expired."))
	}
	c := r.newCall(req, now)
	body, err := builders[req.Verb](ctx, c)
	if err != nil {
		return r.fail(now, req.Verb, err)
	}
	b, err := assemble(r.config.BaseURL, now, req, body)
	if err != nil {
		return r.fail(now, req.Verb, err)
	}
	return &Response{Verb: req.Verb, Request: req, XML: b}, nil
}

// ProcessValues answers a request given as query or form values.
func (r *Repository) ProcessValues(ctx context.Context, vals url.Values) (*Response, error) {
	args, err := valuesToArgs(vals)
	if err != nil {
		return r.fail(r.now().UTC(), 0, err)
	}
	return r.Process(ctx, args)
}

// fail is the single point where errors become responses or faults.
func (r *Repository) fail(now time.Time, verb Verb, err error) (*Response, error) {
	if oe, ok := AsOAIError(err); ok {
		r.logger.Debug("protocol error",
			zap.Stringer("verb", verb),
			zap.String("code", oe.Code()),
			zap.String("message", oe.Message))
		b, merr := assembleError(r.config.BaseURL, now, oe)
		if merr != nil {
			return nil, merr
		}
		return &Response{Verb: verb, Err: oe, XML: b}, nil
	}
	f, ok := AsFault(err)
	if !ok {
		f = Externalf(err, "data collaborator failed")
	}
	r.logger.Error("request failed",
		zap.Stringer("verb", verb),
		zap.Stringer("fault", f.Kind),
		zap.Error(f))
	return nil, f
}

// pager fetches one page of a list.
type pager func(cursor, limit int) (Page, error)

// paginate fetches the page a request points to, checks a resumed token
// against the current state of the list, and prepares the resumption
// token element, which is nil for a list that fits on one page. An empty
// first page yields emptyErr.
func (c *call) paginate(fetch pager, emptyErr *OAIError) (Page, *tokenElem, error) {
	limit := c.repo.config.PageSize
	cursor := c.req.Cursor
	page, err := fetch(cursor, limit)
	if err != nil {
		return page, nil, err
	}
	if t := c.req.Token; t != nil {
		if t.SizeKnown && page.Total != UnknownSize && page.Total < t.CompleteListSize {
			return page, nil, NewError(BadResumptionToken, "The list has shrunk since the resumption token was issued.")
		}
		if t.Fingerprint != Fingerprint(page.State) {
			return page, nil, NewError(BadResumptionToken, "The list has changed since the resumption token was issued.")
		}
	}
	if len(page.Items) == 0 {
		if c.req.Resumed() {
			return page, nil, NewError(BadResumptionToken, "The resumption token points past the end of the list.")
		}
		return page, nil, emptyErr
	}
	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
	}
	var more bool
	if page.Total == UnknownSize {
		more = len(page.Items) == limit
	} else {
		more = cursor+limit < page.Total
		if more && len(page.Items) < limit {
			c.repo.logger.Warn("short page before end of list",
				zap.Stringer("verb", c.req.Verb),
				zap.Int("cursor", cursor),
				zap.Int("limit", limit),
				zap.Int("items", len(page.Items)),
				zap.Int("total", page.Total))
		}
	}
	var (
		next       string
		expiration time.Time
	)
	if more {
		token := &ResumptionToken{
			Args:             c.req.filterArgs(),
			Cursor:           cursor + limit,
			CompleteListSize: page.Total,
			SizeKnown:        page.Total != UnknownSize,
			Fingerprint:      Fingerprint(page.State),
		}
		if ttl := c.repo.config.TokenTTL; ttl > 0 {
			expiration = c.now.Add(ttl).Truncate(time.Second)
			token.Expiration = expiration
		}
		next = token.Encode()
	}
	if cursor == 0 && next == "" {
		// The whole list fits on one page.
		return page, nil, nil
	}
	return page, newTokenElem(cursor, page.Total, next, expiration), nil
}
