package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const staticYAML = `
server:
  addr: ":9000"
log:
  level: debug
repository:
  baseURL: http://oai.example.org/oai
  pageSize: 25
  tokenTTL: 1h
backend:
  type: static
  static:
    file: repository.yaml
    metadataDir: metadata
    watch: true
    localId:
      - prefix: [del, "oai:example.org:"]
`

const apiYAML = `
backend:
  type: api
  api:
    identify:
      repositoryName: API Repository
      adminEmail: [admin@example.org]
      earliestDatestamp: "2001-01-01"
      deletedRecord: "no"
      granularity: YYYY-MM-DD
    formats:
      - metadataPrefix: oai_dc
        schema: http://www.openarchives.org/OAI/2.0/oai_dc.xsd
        metadataNamespace: http://www.openarchives.org/OAI/2.0/oai_dc/
    idExists:
      url: http://api.example.org/records/$localId$
      path: exists
    metadataFieldValues:
      url: http://api.example.org/records/$localId$
      path: formats
    recordMetadata:
      url: http://api.example.org/records/$localId$/$localMetadataId$
    recordDatestamp:
      url: http://api.example.org/records/$localId$
      path: datestamp
    listIdentifiers:
      url: http://api.example.org/list?cursor=$cursor$&limit=$limit$
      items: ids
      total: total
    timeout: 5s
    maxRetries: 2
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "oairepo.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))
	return filename
}

func TestLoadStatic(t *testing.T) {
	c, err := Load(writeConfig(t, staticYAML))
	require.NoError(t, err)
	assert.Equal(t, ":9000", c.Server.Addr)
	assert.Equal(t, "/oai", c.Server.Path)
	assert.Equal(t, 10*time.Second, c.Server.ShutdownTimeout)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 25, c.Repository.PageSize)
	assert.Equal(t, time.Hour, c.Repository.TokenTTL)
	assert.Equal(t, BackendStatic, c.Backend.Type)
	assert.Equal(t, "repository.yaml", c.Backend.Static.File)
	assert.Equal(t, "metadata", c.Backend.Static.MetadataDir)
	assert.True(t, c.Backend.Static.Watch)
	require.Len(t, c.Backend.Static.LocalID, 1)
	assert.Equal(t, []string{"del", "oai:example.org:"}, c.Backend.Static.LocalID[0]["prefix"])

	rc := c.RepositoryConfig()
	assert.Equal(t, "http://oai.example.org/oai", rc.BaseURL)
	assert.Equal(t, 25, rc.PageSize)
}

func TestLoadAPI(t *testing.T) {
	c, err := Load(writeConfig(t, apiYAML))
	require.NoError(t, err)
	assert.Equal(t, BackendAPI, c.Backend.Type)
	a := c.Backend.API
	assert.Equal(t, "API Repository", a.Identify.RepositoryName)
	assert.Equal(t, []string{"admin@example.org"}, a.Identify.AdminEmail)
	require.Len(t, a.Formats, 1)
	assert.Equal(t, "oai_dc", a.Formats[0].Prefix)
	assert.Equal(t, "http://api.example.org/records/$localId$", a.IDExists.URL)
	assert.Equal(t, "ids", a.ListIdentifiers.Items)
	assert.Equal(t, 5*time.Second, a.Timeout)
	assert.Equal(t, 2, a.MaxRetries)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("OAIREPO_SERVER_ADDR", ":7000")
	t.Setenv("OAIREPO_REPOSITORY_PAGESIZE", "7")
	c, err := Load(writeConfig(t, staticYAML))
	require.NoError(t, err)
	assert.Equal(t, ":7000", c.Server.Addr)
	assert.Equal(t, 7, c.Repository.PageSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Backend.Static.File = "repository.yaml"
		return c
	}
	var tests = []struct {
		about  string
		modify func(c *Config)
		err    string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"bad path", func(c *Config) { c.Server.Path = "oai" }, "server.path"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad url", func(c *Config) { c.Repository.BaseURL = "not a url" }, "repository.baseURL"},
		{"zero page", func(c *Config) { c.Repository.PageSize = 0 }, "repository.pageSize"},
		{"negative ttl", func(c *Config) { c.Repository.TokenTTL = -time.Second }, "repository.tokenTTL"},
		{"no file", func(c *Config) { c.Backend.Static.File = "" }, "backend.static.file"},
		{"unknown backend", func(c *Config) { c.Backend.Type = "sql" }, "unknown backend"},
		{"incomplete api", func(c *Config) { c.Backend.Type = BackendAPI }, "missing queries"},
	}
	for _, test := range tests {
		t.Run(test.about, func(t *testing.T) {
			c := valid()
			test.modify(&c)
			err := c.Validate()
			if test.err == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.err)
		})
	}
}

func TestLogger(t *testing.T) {
	logger, err := Log{Level: "warn"}.Logger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.True(t, logger.Core().Enabled(1))

	_, err = Log{Level: "nope"}.Logger()
	assert.Error(t, err)
}
