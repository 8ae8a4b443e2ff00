//
// Package oairepo implements the server side of the Open Archives Initiative
// Protocol for Metadata Harvesting (OAI-PMH). Requests arrive as flat
// argument maps, are checked against the grammar of their verb, answered
// from a pluggable Data collaborator and rendered as OAI-PMH 2.0 XML.
//
// List requests are paged with self-describing resumption tokens, so the
// server keeps no state between requests.
//
// Basic usage:
//
//     repo := oairepo.New(data, oairepo.Config{BaseURL: "http://example.com/oai"})
//     resp, err := repo.Process(ctx, map[string]string{"verb": "Identify"})
//
// The command line tool `oairepo` serves a repository over HTTP.
//
package oairepo
