package oairepo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	testBaseURL   = "http://example.org/oai"
	dcPrefix      = "oai_dc"
	dcSchema      = "http://www.openarchives.org/OAI/2.0/oai_dc.xsd"
	dcNamespace   = "http://www.openarchives.org/OAI/2.0/oai_dc/"
	marcPrefix    = "marcxml"
	marcSchema    = "http://www.loc.gov/standards/marcxml/schema/MARC21slim.xsd"
	marcNamespace = "http://www.loc.gov/MARC21/slim"
)

type fakeRecord struct {
	header   RecordHeader
	metadata map[string]string
	abouts   []string
}

// fakeData is an in-memory collaborator. Counters record how often each
// lookup reached it.
type fakeData struct {
	identify Identify
	formats  []MetadataFormat
	sets     []Set
	records  []fakeRecord
	state    string
	// pageCut, if positive, shortens every list page to that many items.
	pageCut int
	fail    error

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeData) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeData) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func newFakeData(n int) *fakeData {
	f := &fakeData{
		identify: Identify{
			RepositoryName:    "My OAI Repo",
			BaseURL:           testBaseURL,
			AdminEmail:        []string{"admin@example.org"},
			EarliestDatestamp: "2000-01-31",
			DeletedRecord:     DeletedPersistent,
			Granularity:       GranularityDay,
		},
		formats: []MetadataFormat{
			{Prefix: dcPrefix, Schema: dcSchema, Namespace: dcNamespace},
			{Prefix: marcPrefix, Schema: marcSchema, Namespace: marcNamespace},
		},
		sets: []Set{
			{Spec: "math", Name: "Mathematics"},
			{Spec: "phys", Name: "Physics", Description: []string{`<p>Physics</p>`}},
		},
		calls: make(map[string]int),
	}
	for i := 0; i < n; i++ {
		set := "math"
		if i%2 == 1 {
			set = "phys"
		}
		f.records = append(f.records, fakeRecord{
			header: RecordHeader{
				Identifier: fmt.Sprintf("oai:example.org:%d", i),
				Datestamp:  time.Date(2000, 2, 1+i, 12, 0, 0, 0, time.UTC),
				SetSpecs:   []string{set},
			},
			metadata: map[string]string{
				dcPrefix: fmt.Sprintf(`<oai_dc:dc xmlns:oai_dc="%s" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Title %d</dc:title></oai_dc:dc>`, dcNamespace, i),
			},
		})
	}
	return f
}

func (f *fakeData) record(id string) (*fakeRecord, bool) {
	for i := range f.records {
		if f.records[i].header.Identifier == id {
			return &f.records[i], true
		}
	}
	return nil, false
}

func (f *fakeData) Identify(ctx context.Context) (*Identify, error) {
	f.count("Identify")
	if f.fail != nil {
		return nil, f.fail
	}
	return &f.identify, nil
}

func (f *fakeData) IsValidIdentifier(ctx context.Context, identifier string) (bool, error) {
	f.count("IsValidIdentifier")
	_, ok := f.record(identifier)
	return ok, nil
}

func (f *fakeData) MetadataFormats(ctx context.Context, identifier string) ([]MetadataFormat, error) {
	f.count("MetadataFormats")
	if identifier == "" {
		return f.formats, nil
	}
	rec, ok := f.record(identifier)
	if !ok {
		return nil, NewError(IdDoesNotExist, "unknown %s", identifier)
	}
	var formats []MetadataFormat
	for _, mf := range f.formats {
		if _, ok := rec.metadata[mf.Prefix]; ok {
			formats = append(formats, mf)
		}
	}
	return formats, nil
}

func (f *fakeData) RecordHeader(ctx context.Context, identifier string) (*RecordHeader, error) {
	f.count("RecordHeader")
	rec, ok := f.record(identifier)
	if !ok {
		return nil, NewError(IdDoesNotExist, "unknown %s", identifier)
	}
	h := rec.header
	return &h, nil
}

func (f *fakeData) RecordMetadata(ctx context.Context, identifier, prefix string) ([]byte, error) {
	f.count("RecordMetadata")
	rec, ok := f.record(identifier)
	if !ok {
		return nil, NewError(IdDoesNotExist, "unknown %s", identifier)
	}
	m, ok := rec.metadata[prefix]
	if !ok {
		return nil, nil
	}
	return []byte(m), nil
}

func (f *fakeData) RecordAbouts(ctx context.Context, identifier string) ([][]byte, error) {
	f.count("RecordAbouts")
	rec, ok := f.record(identifier)
	if !ok {
		return nil, NewError(IdDoesNotExist, "unknown %s", identifier)
	}
	return stringsToBytes(rec.abouts), nil
}

func (f *fakeData) page(items []string, cursor, limit int) Page {
	total := len(items)
	if cursor > total {
		cursor = total
	}
	end := cursor + limit
	if f.pageCut > 0 && cursor+f.pageCut < end {
		end = cursor + f.pageCut
	}
	if end > total {
		end = total
	}
	return Page{Items: items[cursor:end], Total: total, State: f.state}
}

func (f *fakeData) ListSetSpecs(ctx context.Context, identifier string, cursor, limit int) (Page, error) {
	f.count("ListSetSpecs")
	var specs []string
	for _, s := range f.sets {
		specs = append(specs, s.Spec)
	}
	return f.page(specs, cursor, limit), nil
}

func (f *fakeData) Set(ctx context.Context, spec string) (*Set, error) {
	f.count("Set")
	for i := range f.sets {
		if f.sets[i].Spec == spec {
			return &f.sets[i], nil
		}
	}
	return nil, errors.New("no such set")
}

func (f *fakeData) ListIdentifiers(ctx context.Context, q ListQuery) (Page, error) {
	f.count("ListIdentifiers")
	if f.fail != nil {
		return Page{}, f.fail
	}
	var ids []string
	for _, rec := range f.records {
		if _, ok := rec.metadata[q.Prefix]; !ok && !rec.header.Deleted {
			continue
		}
		if !q.Window.Contains(rec.header.Datestamp) {
			continue
		}
		if q.Set != "" && !contains(rec.header.SetSpecs, q.Set) {
			continue
		}
		ids = append(ids, rec.header.Identifier)
	}
	return f.page(ids, q.Cursor, q.Limit), nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// batchData adds bulk lookups.
type batchData struct {
	*fakeData
}

func (b batchData) RecordsMetadata(ctx context.Context, identifiers []string, prefix string) ([][]byte, error) {
	b.count("RecordsMetadata")
	ms := make([][]byte, len(identifiers))
	for i, id := range identifiers {
		rec, _ := b.record(id)
		if m, ok := rec.metadata[prefix]; ok {
			ms[i] = []byte(m)
		}
	}
	return ms, nil
}

func (b batchData) RecordHeaders(ctx context.Context, identifiers []string) ([]RecordHeader, error) {
	b.count("RecordHeaders")
	hs := make([]RecordHeader, len(identifiers))
	for i, id := range identifiers {
		rec, _ := b.record(id)
		hs[i] = rec.header
	}
	return hs, nil
}

// scopedData counts scopes handed out.
type scopedData struct {
	*fakeData
	scopes int
}

func (s *scopedData) Scope() Data {
	s.scopes++
	return s.fakeData
}
