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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
)

// UnknownSize marks a page whose complete list size is not known.
const UnknownSize = -1

// ProtocolVersion is the only OAI-PMH version supported.
const ProtocolVersion = "2.0"

// Deleted record policies (3.5 Deleted Records).
const (
	DeletedNo         = "no"
	DeletedPersistent = "persistent"
	DeletedTransient  = "transient"
)

// Data is implemented by the backend that answers repository queries.
// Methods return *OAIError values for protocol conditions (for example
// NoSetHierarchy from ListSetSpecs); any other error is treated as a fault.
type Data interface {
	// Identify returns the repository description.
	Identify(ctx context.Context) (*Identify, error)
	// IsValidIdentifier reports whether the identifier exists.
	IsValidIdentifier(ctx context.Context, identifier string) (bool, error)
	// MetadataFormats lists formats available for an identifier, or for
	// the whole repository if identifier is empty.
	MetadataFormats(ctx context.Context, identifier string) ([]MetadataFormat, error)
	// RecordHeader returns the header of an existing record.
	RecordHeader(ctx context.Context, identifier string) (*RecordHeader, error)
	// RecordMetadata returns the XML metadata of a record in the given
	// format, without the wrapping metadata element; nil if there is none.
	RecordMetadata(ctx context.Context, identifier, prefix string) ([]byte, error)
	// RecordAbouts returns XML fragments for the about containers.
	RecordAbouts(ctx context.Context, identifier string) ([][]byte, error)
	// ListSetSpecs returns a page of setSpecs, of a record if identifier is
	// given, or of the repository.
	ListSetSpecs(ctx context.Context, identifier string, cursor, limit int) (Page, error)
	// Set returns a set by its spec.
	Set(ctx context.Context, spec string) (*Set, error)
	// ListIdentifiers returns a page of identifiers matching the query.
	ListIdentifiers(ctx context.Context, q ListQuery) (Page, error)
}

// HeaderBatcher can be implemented to fetch many headers at once.
type HeaderBatcher interface {
	RecordHeaders(ctx context.Context, identifiers []string) ([]RecordHeader, error)
}

// MetadataBatcher can be implemented to fetch metadata of many records.
type MetadataBatcher interface {
	RecordsMetadata(ctx context.Context, identifiers []string, prefix string) ([][]byte, error)
}

// AboutBatcher can be implemented to fetch about fragments of many records.
type AboutBatcher interface {
	RecordsAbouts(ctx context.Context, identifiers []string) ([][][]byte, error)
}

// Scoper is implemented by backends that keep state for the duration of a
// single request, e.g. a response cache. Scope is called once per request
// and the returned value is discarded afterwards.
type Scoper interface {
	Scope() Data
}

// ListQuery selects identifiers for ListIdentifiers and ListRecords.
type ListQuery struct {
	Prefix string
	Window Window
	Set    string
	Cursor int
	Limit  int
}

// Page is a slice of a complete list.
type Page struct {
	Items []string

	// Total is the complete list size or UnknownSize.
	Total int

	// State changes whenever the complete list changes. Optional.
	State string
}

// Identify response.
type Identify struct {
	RepositoryName    string      `yaml:"repositoryName" mapstructure:"repositoryName" json:"name"`
	BaseURL           string      `yaml:"baseURL" mapstructure:"baseURL" json:"url"`
	AdminEmail        []string    `yaml:"adminEmail" mapstructure:"adminEmail" json:"email"`
	EarliestDatestamp string      `yaml:"earliestDatestamp" mapstructure:"earliestDatestamp" json:"earliest"`
	DeletedRecord     string      `yaml:"deletedRecord" mapstructure:"deletedRecord" json:"delete"`
	Granularity       Granularity `yaml:"granularity" mapstructure:"granularity" json:"granularity"`
	Compression       []string    `yaml:"compression" mapstructure:"compression" json:"compression,omitempty"`

	// Description holds XML fragments, each becoming a description element.
	Description []string `yaml:"description" mapstructure:"description" json:"-"`
}

// Errors lists everything wrong with the description.
func (i *Identify) Errors() []string {
	var errs []string
	if strings.TrimSpace(i.RepositoryName) == "" {
		errs = append(errs, "repositoryName must be a non-empty string")
	}
	if !govalidator.IsURL(i.BaseURL) {
		errs = append(errs, "baseURL must be a valid URL")
	}
	if len(i.AdminEmail) == 0 {
		errs = append(errs, "adminEmail must contain at least one address")
	}
	for _, email := range i.AdminEmail {
		if !govalidator.IsEmail(email) {
			errs = append(errs, fmt.Sprintf("invalid adminEmail: %s", email))
		}
	}
	switch i.DeletedRecord {
	case DeletedNo, DeletedPersistent, DeletedTransient:
	default:
		errs = append(errs, "deletedRecord must be one of no, persistent, transient")
	}
	if !i.Granularity.Valid() {
		errs = append(errs, fmt.Sprintf("granularity must be %s or %s", GranularityDay, GranularitySeconds))
	} else if _, err := time.Parse(i.Granularity.layout(), i.EarliestDatestamp); err != nil {
		errs = append(errs, "earliestDatestamp must be a datestamp in the granularity of the repository")
	}
	for _, c := range i.Compression {
		if c == "identity" {
			errs = append(errs, "compression must not list identity, it is implied")
		}
	}
	for n, desc := range i.Description {
		if err := checkFragment([]byte(desc)); err != nil {
			errs = append(errs, fmt.Sprintf("description %d is not valid XML: %v", n, err))
		}
	}
	return errs
}

var metadataPrefixPattern = regexp.MustCompile(`^[A-Za-z0-9\-_.!~*'()]+$`)

// MetadataFormat describes a metadata format a repository can disseminate.
type MetadataFormat struct {
	Prefix    string `yaml:"metadataPrefix" mapstructure:"metadataPrefix" json:"prefix"`
	Schema    string `yaml:"schema" mapstructure:"schema" json:"schema"`
	Namespace string `yaml:"metadataNamespace" mapstructure:"metadataNamespace" json:"namespace"`
}

// Errors lists everything wrong with the format.
func (f *MetadataFormat) Errors() []string {
	var errs []string
	if !metadataPrefixPattern.MatchString(f.Prefix) {
		errs = append(errs, "metadataPrefix contains invalid characters; allowed: A-Za-z0-9-_.!~*'()")
	}
	if !govalidator.IsURL(f.Schema) {
		errs = append(errs, "schema must be a valid URL")
	}
	if !govalidator.IsURL(f.Namespace) {
		errs = append(errs, "metadataNamespace must be a valid URL")
	}
	return errs
}

// RecordHeader is the header of a record.
type RecordHeader struct {
	Identifier string
	Datestamp  time.Time
	SetSpecs   []string
	Deleted    bool
}

// Set describes a set.
type Set struct {
	Spec string `yaml:"spec" mapstructure:"spec" json:"spec"`
	Name string `yaml:"name" mapstructure:"name" json:"name"`

	// Description holds XML fragments, each becoming a setDescription.
	Description []string `yaml:"description" mapstructure:"description" json:"-"`
}

// recordHeaders fetches headers in bulk if the backend supports it.
func recordHeaders(ctx context.Context, d Data, ids []string) ([]RecordHeader, error) {
	if b, ok := d.(HeaderBatcher); ok {
		hs, err := b.RecordHeaders(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(hs) != len(ids) {
			return nil, Internalf(nil, "backend returned %d headers for %d identifiers", len(hs), len(ids))
		}
		return hs, nil
	}
	hs := make([]RecordHeader, len(ids))
	for i, id := range ids {
		h, err := d.RecordHeader(ctx, id)
		if err != nil {
			return nil, err
		}
		hs[i] = *h
	}
	return hs, nil
}

func recordsMetadata(ctx context.Context, d Data, ids []string, prefix string) ([][]byte, error) {
	if b, ok := d.(MetadataBatcher); ok {
		ms, err := b.RecordsMetadata(ctx, ids, prefix)
		if err != nil {
			return nil, err
		}
		if len(ms) != len(ids) {
			return nil, Internalf(nil, "backend returned %d metadata for %d identifiers", len(ms), len(ids))
		}
		return ms, nil
	}
	ms := make([][]byte, len(ids))
	for i, id := range ids {
		m, err := d.RecordMetadata(ctx, id, prefix)
		if err != nil {
			return nil, err
		}
		ms[i] = m
	}
	return ms, nil
}

func recordsAbouts(ctx context.Context, d Data, ids []string) ([][][]byte, error) {
	if b, ok := d.(AboutBatcher); ok {
		as, err := b.RecordsAbouts(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(as) != len(ids) {
			return nil, Internalf(nil, "backend returned %d about lists for %d identifiers", len(as), len(ids))
		}
		return as, nil
	}
	as := make([][][]byte, len(ids))
	for i, id := range ids {
		a, err := d.RecordAbouts(ctx, id)
		if err != nil {
			return nil, err
		}
		as[i] = a
	}
	return as, nil
}
