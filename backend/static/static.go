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
// Package static serves a repository described by a single YAML file, or
// a JSON file with comments.
// Metadata is given inline or read from a metadata directory.
package static

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/miku/oairepo"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config locates the repository data.
type Config struct {
	// File is the YAML repository description.
	File string `mapstructure:"file"`
	// MetadataDir, if set, holds metadata files as <localId>/<localMetadataId>.xml.
	MetadataDir string `mapstructure:"metadataDir"`
	// Watch reloads the data when files change.
	Watch bool `mapstructure:"watch"`
	// LocalID maps identifiers to directory names.
	LocalID []map[string][]string `mapstructure:"localId"`
	// LocalMetadataID maps metadata prefixes to file names.
	LocalMetadataID []map[string][]string `mapstructure:"localMetadataId"`
}

// document is the file format.
type document struct {
	Identify oairepo.Identify         `yaml:"identify"`
	Formats  []oairepo.MetadataFormat `yaml:"formats"`
	Sets     []oairepo.Set            `yaml:"sets"`
	Records  []documentRecord         `yaml:"records"`
}

type documentRecord struct {
	Identifier string            `yaml:"identifier"`
	Datestamp  string            `yaml:"datestamp"`
	Sets       []string          `yaml:"sets"`
	Deleted    bool              `yaml:"deleted"`
	Metadata   map[string]string `yaml:"metadata"`
	About      []string          `yaml:"about"`
}

type record struct {
	header oairepo.RecordHeader
	// formats lists available prefixes in repository order.
	formats  []string
	metadata map[string]string
	abouts   []string
}

// snapshot is an immutable view of the repository. It implements
// oairepo.Data.
type snapshot struct {
	identify oairepo.Identify
	formats  []oairepo.MetadataFormat
	sets     []oairepo.Set
	setIndex map[string]int
	records  []*record
	index    map[string]*record
	state    string

	dir             *MetadataDir
	localID         oairepo.Transform
	localMetadataID oairepo.Transform
}

// load reads and checks the repository described by config.
func load(config Config) (*snapshot, error) {
	b, err := os.ReadFile(config.File)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(config.File)) {
	case ".json", ".jsonc":
		// JSON is YAML, once comments and trailing commas are gone.
		b = jsonc.ToJSON(b)
	}
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", config.File, err)
	}
	s := &snapshot{
		identify: doc.Identify,
		formats:  doc.Formats,
		sets:     doc.Sets,
		setIndex: make(map[string]int),
		index:    make(map[string]*record),
	}
	if s.localID, err = oairepo.ParseRules(config.LocalID); err != nil {
		return nil, fmt.Errorf("localId: %w", err)
	}
	if s.localMetadataID, err = oairepo.ParseRules(config.LocalMetadataID); err != nil {
		return nil, fmt.Errorf("localMetadataId: %w", err)
	}
	if config.MetadataDir != "" {
		if s.dir, err = NewMetadataDir(config.MetadataDir); err != nil {
			return nil, err
		}
	}
	var errs []string
	for _, e := range s.identify.Errors() {
		// The base URL may come from the server configuration.
		if s.identify.BaseURL == "" && strings.HasPrefix(e, "baseURL") {
			continue
		}
		errs = append(errs, "identify: "+e)
	}
	known := make(map[string]bool)
	for _, f := range s.formats {
		for _, e := range f.Errors() {
			errs = append(errs, fmt.Sprintf("format %s: %s", f.Prefix, e))
		}
		known[f.Prefix] = true
	}
	for i, set := range s.sets {
		if _, ok := s.setIndex[set.Spec]; ok {
			errs = append(errs, fmt.Sprintf("set %s: duplicate", set.Spec))
		}
		s.setIndex[set.Spec] = i
	}
	var newest time.Time
	for _, dr := range doc.Records {
		rec, rerrs := s.newRecord(dr, known)
		for _, e := range rerrs {
			errs = append(errs, fmt.Sprintf("record %s: %s", dr.Identifier, e))
		}
		if rec == nil {
			continue
		}
		if _, ok := s.index[dr.Identifier]; ok {
			errs = append(errs, fmt.Sprintf("record %s: duplicate", dr.Identifier))
			continue
		}
		s.index[dr.Identifier] = rec
		s.records = append(s.records, rec)
		if rec.header.Datestamp.After(newest) {
			newest = rec.header.Datestamp
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s: %s", config.File, strings.Join(errs, "; "))
	}
	sort.SliceStable(s.records, func(i, j int) bool {
		a, b := s.records[i].header, s.records[j].header
		if a.Datestamp.Equal(b.Datestamp) {
			return a.Identifier < b.Identifier
		}
		return a.Datestamp.Before(b.Datestamp)
	})
	s.state = newest.UTC().Format(time.RFC3339) + "/" + strconv.Itoa(len(s.records))
	return s, nil
}

func (s *snapshot) newRecord(dr documentRecord, known map[string]bool) (*record, []string) {
	var errs []string
	if dr.Identifier == "" {
		return nil, []string{"identifier is required"}
	}
	t, _, err := oairepo.ParseDatestamp(dr.Datestamp)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid datestamp %q", dr.Datestamp))
	}
	for _, spec := range dr.Sets {
		if _, ok := s.setIndex[spec]; !ok {
			errs = append(errs, fmt.Sprintf("unknown set %s", spec))
		}
	}
	for prefix := range dr.Metadata {
		if !known[prefix] {
			errs = append(errs, fmt.Sprintf("unknown metadata format %s", prefix))
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	rec := &record{
		header: oairepo.RecordHeader{
			Identifier: dr.Identifier,
			Datestamp:  t,
			SetSpecs:   dr.Sets,
			Deleted:    dr.Deleted,
		},
		metadata: dr.Metadata,
		abouts:   dr.About,
	}
	for _, f := range s.formats {
		// Deleted records answer with a header in every format.
		if dr.Deleted {
			rec.formats = append(rec.formats, f.Prefix)
			continue
		}
		if _, ok := dr.Metadata[f.Prefix]; ok {
			rec.formats = append(rec.formats, f.Prefix)
		} else if s.dir != nil && s.dir.Has(s.localID.Forward(dr.Identifier), s.localMetadataID.Forward(f.Prefix)) {
			rec.formats = append(rec.formats, f.Prefix)
		}
	}
	return rec, nil
}

func (s *snapshot) record(identifier string) (*record, error) {
	rec, ok := s.index[identifier]
	if !ok {
		return nil, oairepo.NewError(oairepo.IdDoesNotExist, "The value of the identifier argument is unknown or illegal in this repository.")
	}
	return rec, nil
}

func (s *snapshot) Identify(ctx context.Context) (*oairepo.Identify, error) {
	id := s.identify
	return &id, nil
}

func (s *snapshot) IsValidIdentifier(ctx context.Context, identifier string) (bool, error) {
	_, ok := s.index[identifier]
	return ok, nil
}

func (s *snapshot) MetadataFormats(ctx context.Context, identifier string) ([]oairepo.MetadataFormat, error) {
	if identifier == "" {
		return s.formats, nil
	}
	rec, err := s.record(identifier)
	if err != nil {
		return nil, err
	}
	var formats []oairepo.MetadataFormat
	for _, f := range s.formats {
		for _, p := range rec.formats {
			if p == f.Prefix {
				formats = append(formats, f)
			}
		}
	}
	return formats, nil
}

func (s *snapshot) RecordHeader(ctx context.Context, identifier string) (*oairepo.RecordHeader, error) {
	rec, err := s.record(identifier)
	if err != nil {
		return nil, err
	}
	h := rec.header
	return &h, nil
}

// RecordHeaders implements oairepo.HeaderBatcher.
func (s *snapshot) RecordHeaders(ctx context.Context, identifiers []string) ([]oairepo.RecordHeader, error) {
	hs := make([]oairepo.RecordHeader, len(identifiers))
	for i, id := range identifiers {
		rec, err := s.record(id)
		if err != nil {
			return nil, err
		}
		hs[i] = rec.header
	}
	return hs, nil
}

func (s *snapshot) RecordMetadata(ctx context.Context, identifier, prefix string) ([]byte, error) {
	rec, err := s.record(identifier)
	if err != nil {
		return nil, err
	}
	if m, ok := rec.metadata[prefix]; ok {
		return []byte(m), nil
	}
	if s.dir == nil {
		return nil, nil
	}
	localID, localMetadataID := s.localID.Forward(identifier), s.localMetadataID.Forward(prefix)
	if !s.dir.Has(localID, localMetadataID) {
		return nil, nil
	}
	b, err := s.dir.Get(localID, localMetadataID)
	if err != nil {
		return nil, oairepo.Externalf(err, "cannot read metadata of %s", identifier)
	}
	return b, nil
}

func (s *snapshot) RecordAbouts(ctx context.Context, identifier string) ([][]byte, error) {
	rec, err := s.record(identifier)
	if err != nil {
		return nil, err
	}
	abouts := make([][]byte, len(rec.abouts))
	for i, a := range rec.abouts {
		abouts[i] = []byte(a)
	}
	return abouts, nil
}

func (s *snapshot) ListSetSpecs(ctx context.Context, identifier string, cursor, limit int) (oairepo.Page, error) {
	var specs []string
	if identifier != "" {
		rec, err := s.record(identifier)
		if err != nil {
			return oairepo.Page{}, err
		}
		specs = rec.header.SetSpecs
	} else {
		for _, set := range s.sets {
			specs = append(specs, set.Spec)
		}
	}
	return s.page(specs, cursor, limit), nil
}

func (s *snapshot) Set(ctx context.Context, spec string) (*oairepo.Set, error) {
	i, ok := s.setIndex[spec]
	if !ok {
		return nil, oairepo.Internalf(nil, "unknown set %s", spec)
	}
	set := s.sets[i]
	return &set, nil
}

// inSet reports membership, including membership in ancestors of a set,
// e.g. a record in math:algebra is in math.
func inSet(specs []string, set string) bool {
	for _, spec := range specs {
		if spec == set || strings.HasPrefix(spec, set+":") {
			return true
		}
	}
	return false
}

func (s *snapshot) ListIdentifiers(ctx context.Context, q oairepo.ListQuery) (oairepo.Page, error) {
	if q.Set != "" && len(s.sets) == 0 {
		return oairepo.Page{}, oairepo.NewError(oairepo.NoSetHierarchy, "This repository does not support sets.")
	}
	var ids []string
	for _, rec := range s.records {
		if !rec.header.Deleted && !hasFormat(rec, q.Prefix) {
			continue
		}
		if !q.Window.Contains(rec.header.Datestamp) {
			continue
		}
		if q.Set != "" && !inSet(rec.header.SetSpecs, q.Set) {
			continue
		}
		ids = append(ids, rec.header.Identifier)
	}
	return s.page(ids, q.Cursor, q.Limit), nil
}

func hasFormat(rec *record, prefix string) bool {
	for _, p := range rec.formats {
		if p == prefix {
			return true
		}
	}
	return false
}

func (s *snapshot) page(items []string, cursor, limit int) oairepo.Page {
	total := len(items)
	if cursor > total {
		cursor = total
	}
	end := total
	if limit > 0 && cursor+limit < total {
		end = cursor + limit
	}
	return oairepo.Page{Items: items[cursor:end], Total: total, State: s.state}
}
