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
	"strings"
)

// identify fetches and checks the repository description.
func (c *call) identify(ctx context.Context) (*Identify, error) {
	id, err := c.data.Identify(ctx)
	if err != nil {
		return nil, err
	}
	ident := *id
	if ident.BaseURL == "" {
		ident.BaseURL = c.repo.config.BaseURL
	}
	if errs := ident.Errors(); len(errs) > 0 {
		return nil, Internalf(nil, "invalid repository description: %s", strings.Join(errs, "; "))
	}
	return &ident, nil
}

func (c *call) granularity(ctx context.Context) (Granularity, error) {
	id, err := c.identify(ctx)
	if err != nil {
		return "", err
	}
	return id.Granularity, nil
}

// checkIdentifier fails with idDoesNotExist for unknown identifiers.
func (c *call) checkIdentifier(ctx context.Context, identifier string) error {
	ok, err := c.data.IsValidIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if !ok {
		return NewError(IdDoesNotExist, "The value of the identifier argument is unknown or illegal in this repository.")
	}
	return nil
}

// formats returns the checked formats of a record or the repository.
func (c *call) formats(ctx context.Context, identifier string) ([]MetadataFormat, error) {
	formats, err := c.data.MetadataFormats(ctx, identifier)
	if err != nil {
		return nil, err
	}
	for _, f := range formats {
		if errs := f.Errors(); len(errs) > 0 {
			return nil, Internalf(nil, "invalid metadata format %q: %s", f.Prefix, strings.Join(errs, "; "))
		}
	}
	return formats, nil
}

// checkPrefix fails with cannotDisseminateFormat if the prefix is not
// among the formats of identifier, or of the repository.
func (c *call) checkPrefix(ctx context.Context, identifier, prefix string) error {
	formats, err := c.formats(ctx, identifier)
	if oe, ok := AsOAIError(err); ok && oe.Kind == NoMetadataFormats {
		formats, err = nil, nil
	}
	if err != nil {
		return err
	}
	for _, f := range formats {
		if f.Prefix == prefix {
			return nil
		}
	}
	return NewError(CannotDisseminateFormat, "The metadata format '%s' is not supported by the item or by the repository.", prefix)
}

// checkDates rejects second granularity arguments in a repository that
// only supports days.
func (c *call) checkDates(ctx context.Context) error {
	if c.req.Granularity != GranularitySeconds {
		return nil
	}
	g, err := c.granularity(ctx)
	if err != nil {
		return err
	}
	if g == GranularityDay {
		return NewError(BadArgument, "The repository only supports dates in %s granularity.", GranularityDay)
	}
	return nil
}

func newHeaderElem(h RecordHeader, g Granularity) headerElem {
	e := headerElem{
		Identifier: h.Identifier,
		Datestamp:  FormatDatestamp(g, h.Datestamp),
		SetSpec:    h.SetSpecs,
	}
	if h.Deleted {
		e.Status = "deleted"
	}
	return e
}

func stringsToBytes(ss []string) [][]byte {
	bs := make([][]byte, len(ss))
	for i, s := range ss {
		bs[i] = []byte(s)
	}
	return bs
}

func buildIdentify(ctx context.Context, c *call) (interface{}, error) {
	id, err := c.identify(ctx)
	if err != nil {
		return nil, err
	}
	descriptions, err := newFragments(stringsToBytes(id.Description))
	if err != nil {
		return nil, err
	}
	return &identifyElem{
		RepositoryName:    id.RepositoryName,
		BaseURL:           id.BaseURL,
		ProtocolVersion:   ProtocolVersion,
		AdminEmail:        id.AdminEmail,
		EarliestDatestamp: id.EarliestDatestamp,
		DeletedRecord:     id.DeletedRecord,
		Granularity:       string(id.Granularity),
		Compression:       id.Compression,
		Description:       descriptions,
	}, nil
}

func buildGetRecord(ctx context.Context, c *call) (interface{}, error) {
	req := c.req
	if err := c.checkIdentifier(ctx, req.Identifier); err != nil {
		return nil, err
	}
	if err := c.checkPrefix(ctx, req.Identifier, req.MetadataPrefix); err != nil {
		return nil, err
	}
	g, err := c.granularity(ctx)
	if err != nil {
		return nil, err
	}
	h, err := c.data.RecordHeader(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}
	rec := recordElem{Header: newHeaderElem(*h, g)}
	if !h.Deleted {
		metadata, err := c.data.RecordMetadata(ctx, req.Identifier, req.MetadataPrefix)
		if err != nil {
			return nil, err
		}
		if metadata == nil {
			return nil, NewError(CannotDisseminateFormat, "The record has no metadata in the format '%s'.", req.MetadataPrefix)
		}
		m, err := newFragment(metadata)
		if err != nil {
			return nil, err
		}
		rec.Metadata = &m
		abouts, err := c.data.RecordAbouts(ctx, req.Identifier)
		if err != nil {
			return nil, err
		}
		if rec.About, err = newFragments(abouts); err != nil {
			return nil, err
		}
	}
	return &getRecordElem{Record: rec}, nil
}

func buildListMetadataFormats(ctx context.Context, c *call) (interface{}, error) {
	identifier := c.req.Identifier
	if identifier != "" {
		if err := c.checkIdentifier(ctx, identifier); err != nil {
			return nil, err
		}
	}
	formats, err := c.formats(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if len(formats) == 0 {
		return nil, NewError(NoMetadataFormats, "There are no metadata formats available for the specified item.")
	}
	body := &listMetadataFormatsElem{}
	for _, f := range formats {
		body.Formats = append(body.Formats, metadataFormatElem{
			Prefix:    f.Prefix,
			Schema:    f.Schema,
			Namespace: f.Namespace,
		})
	}
	return body, nil
}

func buildListSets(ctx context.Context, c *call) (interface{}, error) {
	page, token, err := c.paginate(func(cursor, limit int) (Page, error) {
		return c.data.ListSetSpecs(ctx, "", cursor, limit)
	}, NewError(NoSetHierarchy, "This repository does not support sets."))
	if err != nil {
		return nil, err
	}
	body := &listSetsElem{Token: token}
	for _, spec := range page.Items {
		set, err := c.data.Set(ctx, spec)
		if err != nil {
			return nil, err
		}
		descriptions, err := newFragments(stringsToBytes(set.Description))
		if err != nil {
			return nil, err
		}
		body.Sets = append(body.Sets, setElem{
			Spec:        set.Spec,
			Name:        set.Name,
			Description: descriptions,
		})
	}
	return body, nil
}

// listHeaders runs the checks shared by ListIdentifiers and ListRecords
// and returns the headers of the current page.
func (c *call) listHeaders(ctx context.Context) ([]RecordHeader, Granularity, *tokenElem, error) {
	req := c.req
	if err := c.checkDates(ctx); err != nil {
		return nil, "", nil, err
	}
	if err := c.checkPrefix(ctx, "", req.MetadataPrefix); err != nil {
		return nil, "", nil, err
	}
	g, err := c.granularity(ctx)
	if err != nil {
		return nil, "", nil, err
	}
	page, token, err := c.paginate(func(cursor, limit int) (Page, error) {
		return c.data.ListIdentifiers(ctx, ListQuery{
			Prefix: req.MetadataPrefix,
			Window: req.Window,
			Set:    req.Set,
			Cursor: cursor,
			Limit:  limit,
		})
	}, NewError(NoRecordsMatch, "The combination of the values of the from, until, set and metadataPrefix arguments results in an empty list."))
	if err != nil {
		return nil, "", nil, err
	}
	headers, err := c.data.RecordHeaders(ctx, page.Items)
	if err != nil {
		return nil, "", nil, err
	}
	return headers, g, token, nil
}

func buildListIdentifiers(ctx context.Context, c *call) (interface{}, error) {
	headers, g, token, err := c.listHeaders(ctx)
	if err != nil {
		return nil, err
	}
	body := &listIdentifiersElem{Token: token}
	for _, h := range headers {
		body.Headers = append(body.Headers, newHeaderElem(h, g))
	}
	return body, nil
}

func buildListRecords(ctx context.Context, c *call) (interface{}, error) {
	headers, g, token, err := c.listHeaders(ctx)
	if err != nil {
		return nil, err
	}
	var live []string
	for _, h := range headers {
		if !h.Deleted {
			live = append(live, h.Identifier)
		}
	}
	var (
		metadata [][]byte
		abouts   [][][]byte
	)
	if len(live) > 0 {
		if metadata, err = recordsMetadata(ctx, c.base, live, c.req.MetadataPrefix); err != nil {
			return nil, err
		}
		if abouts, err = recordsAbouts(ctx, c.base, live); err != nil {
			return nil, err
		}
	}
	body := &listRecordsElem{Token: token}
	i := 0
	for _, h := range headers {
		rec := recordElem{Header: newHeaderElem(h, g)}
		if !h.Deleted {
			if metadata[i] == nil {
				return nil, Internalf(nil, "record %s is listed for %s but has no metadata", h.Identifier, c.req.MetadataPrefix)
			}
			m, err := newFragment(metadata[i])
			if err != nil {
				return nil, err
			}
			rec.Metadata = &m
			if rec.About, err = newFragments(abouts[i]); err != nil {
				return nil, err
			}
			i++
		}
		body.Records = append(body.Records, rec)
	}
	return body, nil
}
