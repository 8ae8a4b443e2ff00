package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miku/oairepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeRecord struct {
	ID        string   `json:"id"`
	Datestamp string   `json:"datestamp"`
	Formats   []string `json:"formats"`
	Sets      []string `json:"sets"`
	Deleted   bool     `json:"deleted"`
}

var fakeRecords = []fakeRecord{
	{ID: "1", Datestamp: "2001-01-01", Formats: []string{"dc"}, Sets: []string{"math"}},
	{ID: "2", Datestamp: "2002-06-15T10:00:00Z", Formats: []string{"dc", "marcxml"}, Sets: []string{"phys"}},
	{ID: "3", Datestamp: "2003-03-03", Formats: []string{"dc"}, Deleted: true},
}

// fakeAPI serves fakeRecords and counts the calls it answers.
type fakeAPI struct {
	calls  int64
	status int
	body   string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&f.calls, 1)
	if f.status != 0 {
		w.WriteHeader(f.status)
		fmt.Fprint(w, f.body)
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /records/{id}", func(w http.ResponseWriter, r *http.Request) {
		for _, rec := range fakeRecords {
			if rec.ID == r.PathValue("id") {
				json.NewEncoder(w).Encode(map[string]interface{}{"exists": true, "record": rec})
				return
			}
		}
		fmt.Fprint(w, `{"exists": false}`)
	})
	mux.HandleFunc("GET /records/{id}/{format}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><dc xmlns="http://purl.org/dc/elements/1.1/"><title>Record %s in %s</title></dc>`,
			r.PathValue("id"), r.PathValue("format"))
	})
	mux.HandleFunc("GET /list", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var ids []string
		for _, rec := range fakeRecords {
			if q.Get("set") != "" && !contains(rec.Sets, q.Get("set")) {
				continue
			}
			if q.Get("format") != "" && !rec.Deleted && !contains(rec.Formats, q.Get("format")) {
				continue
			}
			if q.Get("from") != "" {
				from, _ := time.Parse(time.RFC3339, q.Get("from"))
				t, _ := parseDatestamp(rec.Datestamp)
				if t.Before(from) {
					continue
				}
			}
			ids = append(ids, rec.ID)
		}
		total := len(ids)
		cursor, _ := strconv.Atoi(q.Get("cursor"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		if cursor > total {
			cursor = total
		}
		end := cursor + limit
		if end > total {
			end = total
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ids":   ids[cursor:end],
			"total": total,
			"state": "v1",
		})
	})
	mux.ServeHTTP(w, r)
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func testConfig(base string) Config {
	return Config{
		Identify: oairepo.Identify{
			RepositoryName:    "API Test Repository",
			AdminEmail:        []string{"admin@example.org"},
			EarliestDatestamp: "2001-01-01",
			DeletedRecord:     oairepo.DeletedPersistent,
			Granularity:       oairepo.GranularityDay,
		},
		Formats: []oairepo.MetadataFormat{
			{Prefix: "oai_dc", Schema: "http://www.openarchives.org/OAI/2.0/oai_dc.xsd", Namespace: "http://www.openarchives.org/OAI/2.0/oai_dc/"},
			{Prefix: "marcxml", Schema: "http://www.loc.gov/standards/marcxml/schema/MARC21slim.xsd", Namespace: "http://www.loc.gov/MARC21/slim"},
		},
		Sets: []oairepo.Set{
			{Spec: "math", Name: "Mathematics"},
			{Spec: "phys", Name: "Physics"},
		},
		LocalID:             []map[string][]string{{"prefix": {"del", "oai:example.org:"}}},
		LocalMetadataID:     []map[string][]string{{"replace": {"oai_dc", "dc"}}},
		IDExists:            Query{URL: base + "/records/$localId$", Path: "exists"},
		MetadataFieldValues: Query{URL: base + "/records/$localId$", Path: "record.formats"},
		RecordMetadata:      Query{URL: base + "/records/$localId$/$localMetadataId$"},
		RecordDatestamp:     Query{URL: base + "/records/$localId$", Path: "record.datestamp"},
		RecordSets:          Query{URL: base + "/records/$localId$", Path: "record.sets"},
		RecordDeleted:       Query{URL: base + "/records/$localId$", Path: "record.deleted"},
		ListIdentifiers: ListQuery{
			URL:   base + "/list?cursor=$cursor$&limit=$limit$&set=$setSpec$&format=$localMetadataId$&from=$from$&until=$until$",
			Items: "ids",
			Total: "total",
			State: "state",
		},
	}
}

func newTestRepository(t *testing.T, fake *fakeAPI) *oairepo.Repository {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	a, err := New(testConfig(srv.URL), WithDoer(srv.Client()))
	require.NoError(t, err)
	return oairepo.New(a, oairepo.Config{BaseURL: "http://localhost:8000/oai", PageSize: 2})
}

func TestExpand(t *testing.T) {
	var tests = []struct {
		template     string
		replacements []string
		want         string
	}{
		{"http://x/$localId$", []string{PlaceholderLocalID, "1"}, "http://x/1"},
		{"http://x/?q=$localId$", []string{PlaceholderLocalID, "a b&c"}, "http://x/?q=a+b%26c"},
		{"http://x/?s=$setSpec$&c=$cursor$", []string{PlaceholderSetSpec, "math:algebra", PlaceholderCursor, "10"}, "http://x/?s=math%3Aalgebra&c=10"},
		{"http://x/$unknown$", []string{PlaceholderLocalID, "1"}, "http://x/$unknown$"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, expand(test.template, test.replacements...))
	}
}

func TestTruthy(t *testing.T) {
	var tests = []struct {
		json string
		want bool
	}{
		{`{"v": true}`, true},
		{`{"v": false}`, false},
		{`{"v": 1}`, true},
		{`{"v": 0}`, false},
		{`{"v": "yes"}`, true},
		{`{"v": ""}`, false},
		{`{"v": "false"}`, false},
		{`{"v": [1]}`, true},
		{`{"v": []}`, false},
		{`{"v": {}}`, true},
		{`{"v": null}`, false},
		{`{}`, false},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, truthy(gjson.Get(test.json, "v")), test.json)
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig("http://x").Validate())

	err := Config{}.Validate()
	require.Error(t, err)
	for _, name := range []string{"idExists", "metadataFieldValues", "recordMetadata", "recordDatestamp", "listIdentifiers"} {
		assert.Contains(t, err.Error(), name)
	}

	c := testConfig("http://x")
	c.LocalID = []map[string][]string{{"prefix": {"strip", "x"}}}
	_, err = New(c)
	assert.Error(t, err)
}

func TestGetRecord(t *testing.T) {
	repo := newTestRepository(t, &fakeAPI{})
	ctx := context.Background()

	resp, err := repo.Process(ctx, map[string]string{"verb": "GetRecord", "identifier": "oai:example.org:2", "metadataPrefix": "oai_dc"})
	require.NoError(t, err)
	require.Nil(t, resp.Err)
	s := string(resp.XML)
	assert.Contains(t, s, "<identifier>oai:example.org:2</identifier>")
	assert.Contains(t, s, "<datestamp>2002-06-15</datestamp>")
	assert.Contains(t, s, "<setSpec>phys</setSpec>")
	assert.Contains(t, s, "<title>Record 2 in dc</title>")
	assert.NotContains(t, s, "<?xml version=\"1.0\"?>")

	resp, err = repo.Process(ctx, map[string]string{"verb": "GetRecord", "identifier": "oai:example.org:3", "metadataPrefix": "oai_dc"})
	require.NoError(t, err)
	require.Nil(t, resp.Err)
	assert.Contains(t, string(resp.XML), `<header status="deleted">`)
	assert.NotContains(t, string(resp.XML), "<metadata>")

	var tests = []struct {
		args map[string]string
		want oairepo.ErrorKind
	}{
		{map[string]string{"verb": "GetRecord", "identifier": "oai:example.org:9", "metadataPrefix": "oai_dc"}, oairepo.IdDoesNotExist},
		{map[string]string{"verb": "GetRecord", "identifier": "oai:example.org:1", "metadataPrefix": "marcxml"}, oairepo.CannotDisseminateFormat},
		{map[string]string{"verb": "GetRecord", "identifier": "oai:example.org:1", "metadataPrefix": "mods"}, oairepo.CannotDisseminateFormat},
	}
	for _, test := range tests {
		resp, err := repo.Process(ctx, test.args)
		require.NoError(t, err)
		require.NotNil(t, resp.Err, test.args)
		assert.Equal(t, test.want, resp.Err.Kind, test.args)
	}
}

func TestListMetadataFormats(t *testing.T) {
	repo := newTestRepository(t, &fakeAPI{})
	resp, err := repo.Process(context.Background(), map[string]string{"verb": "ListMetadataFormats", "identifier": "oai:example.org:2"})
	require.NoError(t, err)
	require.Nil(t, resp.Err)
	assert.Equal(t, 2, strings.Count(string(resp.XML), "<metadataFormat>"))

	resp, err = repo.Process(context.Background(), map[string]string{"verb": "ListMetadataFormats", "identifier": "oai:example.org:1"})
	require.NoError(t, err)
	require.Nil(t, resp.Err)
	assert.Equal(t, 1, strings.Count(string(resp.XML), "<metadataFormat>"))
	assert.Contains(t, string(resp.XML), "<metadataPrefix>oai_dc</metadataPrefix>")
}

var tokenPattern = regexp.MustCompile(`<resumptionToken[^>]*>([^<]*)</resumptionToken>`)

func TestListIdentifiersPaging(t *testing.T) {
	repo := newTestRepository(t, &fakeAPI{})
	ctx := context.Background()

	resp, err := repo.Process(ctx, map[string]string{"verb": "ListIdentifiers", "metadataPrefix": "oai_dc"})
	require.NoError(t, err)
	require.Nil(t, resp.Err)
	s := string(resp.XML)
	assert.Equal(t, 2, strings.Count(s, "<header"))
	assert.Contains(t, s, `completeListSize="3"`)
	m := tokenPattern.FindStringSubmatch(s)
	require.Len(t, m, 2)
	require.NotEmpty(t, m[1])

	resp, err = repo.Process(ctx, map[string]string{"verb": "ListIdentifiers", "resumptionToken": m[1]})
	require.NoError(t, err)
	require.Nil(t, resp.Err)
	s = string(resp.XML)
	assert.Equal(t, 1, strings.Count(s, "<header"))
	assert.Contains(t, s, `<header status="deleted">`)
	m = tokenPattern.FindStringSubmatch(s)
	require.Len(t, m, 2)
	assert.Empty(t, m[1])
}

func TestListIdentifiersFilters(t *testing.T) {
	repo := newTestRepository(t, &fakeAPI{})
	ctx := context.Background()

	resp, err := repo.Process(ctx, map[string]string{"verb": "ListIdentifiers", "metadataPrefix": "marcxml"})
	require.NoError(t, err)
	require.Nil(t, resp.Err)
	assert.Contains(t, string(resp.XML), "oai:example.org:2")
	assert.NotContains(t, string(resp.XML), "oai:example.org:1<")

	resp, err = repo.Process(ctx, map[string]string{"verb": "ListIdentifiers", "metadataPrefix": "oai_dc", "from": "2002-01-01", "set": "phys"})
	require.NoError(t, err)
	require.Nil(t, resp.Err)
	assert.Equal(t, 1, strings.Count(string(resp.XML), "<header"))

	resp, err = repo.Process(ctx, map[string]string{"verb": "ListIdentifiers", "metadataPrefix": "oai_dc", "from": "2005-01-01"})
	require.NoError(t, err)
	require.NotNil(t, resp.Err)
	assert.Equal(t, oairepo.NoRecordsMatch, resp.Err.Kind)
}

func TestListRecords(t *testing.T) {
	repo := newTestRepository(t, &fakeAPI{})
	resp, err := repo.Process(context.Background(), map[string]string{"verb": "ListRecords", "metadataPrefix": "oai_dc", "set": "math"})
	require.NoError(t, err)
	require.Nil(t, resp.Err)
	assert.Contains(t, string(resp.XML), "<title>Record 1 in dc</title>")
	assert.NotContains(t, string(resp.XML), "<resumptionToken")
}

func TestListSets(t *testing.T) {
	repo := newTestRepository(t, &fakeAPI{})
	resp, err := repo.Process(context.Background(), map[string]string{"verb": "ListSets"})
	require.NoError(t, err)
	require.Nil(t, resp.Err)
	assert.Contains(t, string(resp.XML), "<setName>Mathematics</setName>")
	assert.Contains(t, string(resp.XML), "<setName>Physics</setName>")
}

func TestScopeCachesCalls(t *testing.T) {
	fake := &fakeAPI{}
	repo := newTestRepository(t, fake)
	resp, err := repo.Process(context.Background(), map[string]string{"verb": "GetRecord", "identifier": "oai:example.org:1", "metadataPrefix": "oai_dc"})
	require.NoError(t, err)
	require.Nil(t, resp.Err)
	// One call for the record document, one for the metadata.
	assert.Equal(t, int64(2), atomic.LoadInt64(&fake.calls))

	_, err = repo.Process(context.Background(), map[string]string{"verb": "GetRecord", "identifier": "oai:example.org:1", "metadataPrefix": "oai_dc"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), atomic.LoadInt64(&fake.calls))
}

func TestFaults(t *testing.T) {
	var tests = []struct {
		about  string
		status int
		body   string
		want   oairepo.FaultKind
	}{
		{"server error", http.StatusInternalServerError, "boom", oairepo.FaultExternal},
		{"not found", http.StatusNotFound, "", oairepo.FaultExternal},
	}
	for _, test := range tests {
		t.Run(test.about, func(t *testing.T) {
			repo := newTestRepository(t, &fakeAPI{status: test.status, body: test.body})
			resp, err := repo.Process(context.Background(), map[string]string{"verb": "GetRecord", "identifier": "oai:example.org:1", "metadataPrefix": "oai_dc"})
			require.Error(t, err)
			assert.Nil(t, resp)
			f, ok := oairepo.AsFault(err)
			require.True(t, ok)
			assert.Equal(t, test.want, f.Kind)
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{not json")
	}))
	defer srv.Close()
	a, err := New(testConfig(srv.URL), WithDoer(srv.Client()))
	require.NoError(t, err)
	_, err = a.IsValidIdentifier(context.Background(), "oai:example.org:1")
	require.Error(t, err)
	f, ok := oairepo.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, oairepo.FaultInternal, f.Kind)
}
