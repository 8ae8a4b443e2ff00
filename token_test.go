package oairepo

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	var tests = []struct {
		name  string
		token ResumptionToken
	}{
		{"cursor only", ResumptionToken{Cursor: 100}},
		{"args only", ResumptionToken{Args: map[string]string{"metadataPrefix": "oai_dc"}}},
		{"size zero", ResumptionToken{Cursor: 10, CompleteListSize: 0, SizeKnown: true}},
		{"full", ResumptionToken{
			Args: map[string]string{
				"metadataPrefix": "oai_dc",
				"from":           "2020-01-01",
				"until":          "2020-12-31",
				"set":            "math:algebra",
			},
			Cursor:           200,
			CompleteListSize: 1234,
			SizeKnown:        true,
			Expiration:       time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
			Fingerprint:      Fingerprint("2020-01-01T00:00:00Z/1234"),
		}},
		{"special characters", ResumptionToken{
			Args:   map[string]string{"set": "a&b=c d+e"},
			Cursor: 1,
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := test.token.Encode()
			require.NotEmpty(t, s)
			got, err := DecodeToken(s)
			require.NoError(t, err)
			if diff := cmp.Diff(&test.token, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("DecodeToken(Encode()) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTokenEmpty(t *testing.T) {
	var tests = []*ResumptionToken{
		nil,
		{},
		{Args: map[string]string{}},
		{Args: map[string]string{"c": "5"}},
	}
	for _, token := range tests {
		assert.True(t, token.Empty())
		assert.Equal(t, "", token.Encode())
	}
	assert.False(t, (&ResumptionToken{SizeKnown: true}).Empty())
}

func TestTokenReservedArgsDropped(t *testing.T) {
	token := ResumptionToken{Args: map[string]string{"set": "x", "c": "99", "h": "bogus"}, Cursor: 3}
	got, err := DecodeToken(token.Encode())
	require.NoError(t, err)
	assert.Equal(t, 3, got.Cursor)
	assert.Equal(t, "", got.Fingerprint)
	assert.Equal(t, map[string]string{"set": "x"}, got.Args)
}

func TestDecodeTokenErrors(t *testing.T) {
	var tests = []string{
		"",
		"not base64!",
		b64("c=abc"),
		b64("c=-1"),
		b64("s=1.5"),
		b64("s=-3"),
		b64("e=tomorrow"),
		b64("c=1&%zz"),
	}
	for _, s := range tests {
		_, err := DecodeToken(s)
		oe, ok := AsOAIError(err)
		if !ok {
			t.Errorf("DecodeToken(%q) got %v, want protocol error", s, err)
			continue
		}
		assert.Equal(t, BadResumptionToken, oe.Kind, s)
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.False(t, (&ResumptionToken{}).Expired(now))
	assert.False(t, (&ResumptionToken{Expiration: now}).Expired(now))
	assert.False(t, (&ResumptionToken{Expiration: now.Add(time.Second)}).Expired(now))
	assert.True(t, (&ResumptionToken{Expiration: now.Add(-time.Second)}).Expired(now))
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("2020-01-01/10")
	b := Fingerprint("2020-01-01/11")
	assert.Len(t, a, 16)
	assert.Equal(t, a, Fingerprint("2020-01-01/10"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, "", Fingerprint(""))
	assert.Equal(t, strings.ToLower(a), a)

	ta, err := DecodeToken((&ResumptionToken{Cursor: 1, Fingerprint: a}).Encode())
	require.NoError(t, err)
	tb, err := DecodeToken((&ResumptionToken{Cursor: 1, Fingerprint: b}).Encode())
	require.NoError(t, err)
	assert.NotEqual(t, ta.Fingerprint, tb.Fingerprint)
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
