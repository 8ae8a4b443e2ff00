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
// Package api answers repository queries from a remote JSON API. Every
// lookup is a URL template plus a gjson path into the response.
package api

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/miku/oairepo"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Placeholders replaced in URL templates. Values are query escaped.
const (
	PlaceholderLocalID         = "$localId$"
	PlaceholderLocalMetadataID = "$localMetadataId$"
	PlaceholderCursor          = "$cursor$"
	PlaceholderLimit           = "$limit$"
	PlaceholderSetSpec         = "$setSpec$"
	PlaceholderFrom            = "$from$"
	PlaceholderUntil           = "$until$"
)

// cacheSize bounds the responses remembered during one request.
const cacheSize = 256

// Query is a URL template and a gjson path selecting the answer.
type Query struct {
	URL  string `mapstructure:"url"`
	Path string `mapstructure:"path"`
}

// IsZero reports an unconfigured query.
func (q Query) IsZero() bool {
	return q.URL == ""
}

// ListQuery selects a page of local ids, and optionally the complete list
// size and a state marker, from one response.
type ListQuery struct {
	URL   string `mapstructure:"url"`
	Items string `mapstructure:"items"`
	Total string `mapstructure:"total"`
	State string `mapstructure:"state"`
}

// Config describes the repository and the API calls answering it.
type Config struct {
	Identify oairepo.Identify         `mapstructure:"identify"`
	Formats  []oairepo.MetadataFormat `mapstructure:"formats"`
	Sets     []oairepo.Set            `mapstructure:"sets"`

	LocalID         []map[string][]string `mapstructure:"localId"`
	LocalMetadataID []map[string][]string `mapstructure:"localMetadataId"`

	// IDExists yields a truthy value for existing records.
	IDExists Query `mapstructure:"idExists"`

	// MetadataFieldValues yields the local metadata ids of a record.
	MetadataFieldValues Query `mapstructure:"metadataFieldValues"`

	// RecordMetadata returns the metadata document itself; Path is unused.
	RecordMetadata Query `mapstructure:"recordMetadata"`

	// RecordDatestamp yields the datestamp of a record.
	RecordDatestamp Query `mapstructure:"recordDatestamp"`

	// RecordSets yields the set specs of a record. Optional.
	RecordSets Query `mapstructure:"recordSets"`

	// RecordDeleted yields true for deleted records. Optional.
	RecordDeleted Query `mapstructure:"recordDeleted"`

	ListIdentifiers ListQuery `mapstructure:"listIdentifiers"`

	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"maxRetries"`
}

// Validate checks that the required queries are configured.
func (c Config) Validate() error {
	var missing []string
	for name, q := range map[string]Query{
		"idExists":            c.IDExists,
		"metadataFieldValues": c.MetadataFieldValues,
		"recordMetadata":      c.RecordMetadata,
		"recordDatestamp":     c.RecordDatestamp,
	} {
		if q.IsZero() {
			missing = append(missing, name)
		}
	}
	if c.ListIdentifiers.URL == "" || c.ListIdentifiers.Items == "" {
		missing = append(missing, "listIdentifiers")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("api backend: missing queries: %s", strings.Join(missing, ", "))
	}
	return nil
}

// API is an oairepo.Data backed by HTTP calls. It is safe for concurrent
// use; response caches only live within a Scope.
type API struct {
	config          Config
	doer            HttpRequestDoer
	logger          *zap.Logger
	localID         oairepo.Transform
	localMetadataID oairepo.Transform
}

// Option configures an API.
type Option func(*API)

// WithDoer replaces the HTTP client.
func WithDoer(doer HttpRequestDoer) Option {
	return func(a *API) { a.doer = doer }
}

// WithLogger sets a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// New checks config and creates an API backend.
func New(config Config, opts ...Option) (*API, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	a := &API{config: config, logger: zap.NewNop()}
	var err error
	if a.localID, err = oairepo.ParseRules(config.LocalID); err != nil {
		return nil, fmt.Errorf("localId: %w", err)
	}
	if a.localMetadataID, err = oairepo.ParseRules(config.LocalMetadataID); err != nil {
		return nil, fmt.Errorf("localMetadataId: %w", err)
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.doer == nil {
		a.doer = NewClient(config.Timeout, config.MaxRetries)
	}
	return a, nil
}

// Scope implements oairepo.Scoper: the returned value remembers API
// responses until it is dropped.
func (a *API) Scope() oairepo.Data {
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		panic(err)
	}
	return &scope{API: a, cache: cache}
}

// scope is the per request view on the API.
type scope struct {
	*API
	cache *lru.Cache[string, []byte]
}

// fetch gets a URL, at most once per scope.
func (s *scope) fetch(ctx context.Context, link string) ([]byte, error) {
	if b, ok := s.cache.Get(link); ok {
		return b, nil
	}
	start := time.Now()
	b, err := get(ctx, s.doer, link)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("api call", zap.String("url", link), zap.Duration("took", time.Since(start)))
	s.cache.Add(link, b)
	return b, nil
}

// query runs a query and returns the selected value.
func (s *scope) query(ctx context.Context, q Query, replacements ...string) (gjson.Result, error) {
	link := expand(q.URL, replacements...)
	b, err := s.fetch(ctx, link)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(b) {
		return gjson.Result{}, oairepo.Internalf(nil, "API response is not valid JSON: %s", link)
	}
	return gjson.GetBytes(b, q.Path), nil
}

// expand replaces placeholder, value pairs in a URL template.
func expand(template string, replacements ...string) string {
	pairs := make([]string, 0, len(replacements))
	for i := 0; i+1 < len(replacements); i += 2 {
		pairs = append(pairs, replacements[i], url.QueryEscape(replacements[i+1]))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func (s *scope) Identify(ctx context.Context) (*oairepo.Identify, error) {
	id := s.config.Identify
	return &id, nil
}

func (s *scope) IsValidIdentifier(ctx context.Context, identifier string) (bool, error) {
	localID := s.localID.Forward(identifier)
	if localID == "" {
		return false, nil
	}
	r, err := s.query(ctx, s.config.IDExists, PlaceholderLocalID, localID)
	if err != nil {
		return false, err
	}
	return truthy(r), nil
}

// truthy is false for missing, null, false, zero and empty values.
func truthy(r gjson.Result) bool {
	switch {
	case r.IsArray():
		return len(r.Array()) > 0
	case r.IsObject():
		return true
	case r.Type == gjson.String:
		return r.Str != "" && r.Str != "false" && r.Str != "0"
	default:
		return r.Bool()
	}
}

func (s *scope) MetadataFormats(ctx context.Context, identifier string) ([]oairepo.MetadataFormat, error) {
	if identifier == "" {
		return s.config.Formats, nil
	}
	r, err := s.query(ctx, s.config.MetadataFieldValues, PlaceholderLocalID, s.localID.Forward(identifier))
	if err != nil {
		return nil, err
	}
	available := make(map[string]bool)
	for _, v := range r.Array() {
		available[s.localMetadataID.Reverse(v.String())] = true
	}
	var formats []oairepo.MetadataFormat
	for _, f := range s.config.Formats {
		if available[f.Prefix] {
			formats = append(formats, f)
		}
	}
	return formats, nil
}

func (s *scope) RecordHeader(ctx context.Context, identifier string) (*oairepo.RecordHeader, error) {
	localID := s.localID.Forward(identifier)
	r, err := s.query(ctx, s.config.RecordDatestamp, PlaceholderLocalID, localID)
	if err != nil {
		return nil, err
	}
	datestamp, err := parseDatestamp(r.String())
	if err != nil {
		return nil, oairepo.Internalf(err, "record %s has an invalid datestamp %q", identifier, r.String())
	}
	h := &oairepo.RecordHeader{Identifier: identifier, Datestamp: datestamp}
	if !s.config.RecordSets.IsZero() {
		r, err := s.query(ctx, s.config.RecordSets, PlaceholderLocalID, localID)
		if err != nil {
			return nil, err
		}
		for _, v := range r.Array() {
			h.SetSpecs = append(h.SetSpecs, v.String())
		}
	}
	if !s.config.RecordDeleted.IsZero() {
		r, err := s.query(ctx, s.config.RecordDeleted, PlaceholderLocalID, localID)
		if err != nil {
			return nil, err
		}
		h.Deleted = r.Bool()
	}
	return h, nil
}

// parseDatestamp accepts OAI datestamps and RFC 3339 timestamps.
func parseDatestamp(s string) (time.Time, error) {
	if t, _, err := oairepo.ParseDatestamp(s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (s *scope) RecordMetadata(ctx context.Context, identifier, prefix string) ([]byte, error) {
	formats, err := s.MetadataFormats(ctx, identifier)
	if err != nil {
		return nil, err
	}
	var ok bool
	for _, f := range formats {
		if f.Prefix == prefix {
			ok = true
			break
		}
	}
	if !ok {
		return nil, nil
	}
	link := expand(s.config.RecordMetadata.URL,
		PlaceholderLocalID, s.localID.Forward(identifier),
		PlaceholderLocalMetadataID, s.localMetadataID.Forward(prefix))
	return s.fetch(ctx, link)
}

func (s *scope) RecordAbouts(ctx context.Context, identifier string) ([][]byte, error) {
	return nil, nil
}

func (s *scope) ListSetSpecs(ctx context.Context, identifier string, cursor, limit int) (oairepo.Page, error) {
	var specs []string
	if identifier != "" {
		h, err := s.RecordHeader(ctx, identifier)
		if err != nil {
			return oairepo.Page{}, err
		}
		specs = h.SetSpecs
	} else {
		for _, set := range s.config.Sets {
			specs = append(specs, set.Spec)
		}
	}
	total := len(specs)
	if cursor > total {
		cursor = total
	}
	end := total
	if cursor+limit < total {
		end = cursor + limit
	}
	return oairepo.Page{Items: specs[cursor:end], Total: total}, nil
}

func (s *scope) Set(ctx context.Context, spec string) (*oairepo.Set, error) {
	for _, set := range s.config.Sets {
		if set.Spec == spec {
			set := set
			return &set, nil
		}
	}
	return nil, oairepo.Internalf(nil, "unknown set %s", spec)
}

func (s *scope) ListIdentifiers(ctx context.Context, q oairepo.ListQuery) (oairepo.Page, error) {
	if q.Set != "" && len(s.config.Sets) == 0 {
		return oairepo.Page{}, oairepo.NewError(oairepo.NoSetHierarchy, "This repository does not support sets.")
	}
	lq := s.config.ListIdentifiers
	var from, until string
	if !q.Window.From.IsZero() {
		from = q.Window.From.UTC().Format(time.RFC3339)
	}
	if !q.Window.Until.IsZero() {
		until = q.Window.Until.UTC().Format(time.RFC3339)
	}
	link := expand(lq.URL,
		PlaceholderLocalMetadataID, s.localMetadataID.Forward(q.Prefix),
		PlaceholderCursor, strconv.Itoa(q.Cursor),
		PlaceholderLimit, strconv.Itoa(q.Limit),
		PlaceholderSetSpec, q.Set,
		PlaceholderFrom, from,
		PlaceholderUntil, until)
	b, err := s.fetch(ctx, link)
	if err != nil {
		return oairepo.Page{}, err
	}
	if !gjson.ValidBytes(b) {
		return oairepo.Page{}, oairepo.Internalf(nil, "API response is not valid JSON: %s", link)
	}
	page := oairepo.Page{Total: oairepo.UnknownSize}
	for _, v := range gjson.GetBytes(b, lq.Items).Array() {
		page.Items = append(page.Items, s.localID.Reverse(v.String()))
	}
	if lq.Total != "" {
		if r := gjson.GetBytes(b, lq.Total); r.Exists() {
			page.Total = int(r.Int())
		}
	}
	if lq.State != "" {
		page.State = gjson.GetBytes(b, lq.State).String()
	}
	return page, nil
}

// Every method of API runs in a scope of its own.

func (a *API) Identify(ctx context.Context) (*oairepo.Identify, error) {
	return a.Scope().Identify(ctx)
}

func (a *API) IsValidIdentifier(ctx context.Context, identifier string) (bool, error) {
	return a.Scope().IsValidIdentifier(ctx, identifier)
}

func (a *API) MetadataFormats(ctx context.Context, identifier string) ([]oairepo.MetadataFormat, error) {
	return a.Scope().MetadataFormats(ctx, identifier)
}

func (a *API) RecordHeader(ctx context.Context, identifier string) (*oairepo.RecordHeader, error) {
	return a.Scope().RecordHeader(ctx, identifier)
}

func (a *API) RecordMetadata(ctx context.Context, identifier, prefix string) ([]byte, error) {
	return a.Scope().RecordMetadata(ctx, identifier, prefix)
}

func (a *API) RecordAbouts(ctx context.Context, identifier string) ([][]byte, error) {
	return a.Scope().RecordAbouts(ctx, identifier)
}

func (a *API) ListSetSpecs(ctx context.Context, identifier string, cursor, limit int) (oairepo.Page, error) {
	return a.Scope().ListSetSpecs(ctx, identifier, cursor, limit)
}

func (a *API) Set(ctx context.Context, spec string) (*oairepo.Set, error) {
	return a.Scope().Set(ctx, spec)
}

func (a *API) ListIdentifiers(ctx context.Context, q oairepo.ListQuery) (oairepo.Page, error) {
	return a.Scope().ListIdentifiers(ctx, q)
}
