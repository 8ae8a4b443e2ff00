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
	"bytes"
	"encoding/xml"
	"io"
	"regexp"
	"strconv"
	"time"
)

const (
	// Namespace of OAI-PMH 2.0 responses.
	Namespace = "http://www.openarchives.org/OAI/2.0/"
	// SchemaLocation pairs the namespace with its schema.
	SchemaLocation = Namespace + " http://www.openarchives.org/OAI/2.0/OAI-PMH.xsd"
	// XMLHeader starts every response.
	XMLHeader = `<?xml version="1.0" encoding="UTF-8" ?>` + "\n"

	xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"
)

// Response is the outcome of a processed request. Err is set for protocol
// errors, in which case XML holds an error envelope.
type Response struct {
	Verb    Verb
	Request *Request
	Err     *OAIError
	XML     []byte
}

// envelope is the OAI-PMH root element. Body is one of the verb elements
// below or an errorElem.
type envelope struct {
	XMLName        xml.Name    `xml:"OAI-PMH"`
	Xmlns          string      `xml:"xmlns,attr"`
	XmlnsXSI       string      `xml:"xmlns:xsi,attr"`
	SchemaLocation string      `xml:"xsi:schemaLocation,attr"`
	Date           string      `xml:"responseDate"`
	Request        requestElem `xml:"request"`
	Body           interface{}
}

// requestElem echoes the request; its text is the base URL.
type requestElem struct {
	Attrs []xml.Attr `xml:",any,attr"`
	URL   string     `xml:",chardata"`
}

type errorElem struct {
	XMLName xml.Name `xml:"error"`
	Code    string   `xml:"code,attr"`
	Message string   `xml:",chardata"`
}

// fragment embeds collaborator supplied XML verbatim.
type fragment struct {
	Raw string `xml:",innerxml"`
}

type identifyElem struct {
	XMLName           xml.Name   `xml:"Identify"`
	RepositoryName    string     `xml:"repositoryName"`
	BaseURL           string     `xml:"baseURL"`
	ProtocolVersion   string     `xml:"protocolVersion"`
	AdminEmail        []string   `xml:"adminEmail"`
	EarliestDatestamp string     `xml:"earliestDatestamp"`
	DeletedRecord     string     `xml:"deletedRecord"`
	Granularity       string     `xml:"granularity"`
	Compression       []string   `xml:"compression"`
	Description       []fragment `xml:"description"`
}

type headerElem struct {
	Status     string   `xml:"status,attr,omitempty"`
	Identifier string   `xml:"identifier"`
	Datestamp  string   `xml:"datestamp"`
	SetSpec    []string `xml:"setSpec"`
}

type recordElem struct {
	Header   headerElem `xml:"header"`
	Metadata *fragment  `xml:"metadata"`
	About    []fragment `xml:"about"`
}

type getRecordElem struct {
	XMLName xml.Name   `xml:"GetRecord"`
	Record  recordElem `xml:"record"`
}

type metadataFormatElem struct {
	Prefix    string `xml:"metadataPrefix"`
	Schema    string `xml:"schema"`
	Namespace string `xml:"metadataNamespace"`
}

type listMetadataFormatsElem struct {
	XMLName xml.Name             `xml:"ListMetadataFormats"`
	Formats []metadataFormatElem `xml:"metadataFormat"`
}

// tokenElem is the resumptionToken element (3.5). Cursor is always
// written, even on the last page.
type tokenElem struct {
	Value            string `xml:",chardata"`
	ExpirationDate   string `xml:"expirationDate,attr,omitempty"`
	CompleteListSize string `xml:"completeListSize,attr,omitempty"`
	Cursor           int    `xml:"cursor,attr"`
}

type setElem struct {
	Spec        string     `xml:"setSpec"`
	Name        string     `xml:"setName"`
	Description []fragment `xml:"setDescription"`
}

type listSetsElem struct {
	XMLName xml.Name   `xml:"ListSets"`
	Sets    []setElem  `xml:"set"`
	Token   *tokenElem `xml:"resumptionToken"`
}

type listIdentifiersElem struct {
	XMLName xml.Name     `xml:"ListIdentifiers"`
	Headers []headerElem `xml:"header"`
	Token   *tokenElem   `xml:"resumptionToken"`
}

type listRecordsElem struct {
	XMLName xml.Name     `xml:"ListRecords"`
	Records []recordElem `xml:"record"`
	Token   *tokenElem   `xml:"resumptionToken"`
}

func newTokenElem(cursor, size int, next string, expiration time.Time) *tokenElem {
	t := &tokenElem{Value: next, Cursor: cursor}
	if size != UnknownSize {
		t.CompleteListSize = strconv.Itoa(size)
	}
	if next != "" && !expiration.IsZero() {
		t.ExpirationDate = FormatDatestamp(GranularitySeconds, expiration)
	}
	return t
}

// assemble renders a success envelope. All request arguments are echoed.
func assemble(baseURL string, now time.Time, req *Request, body interface{}) ([]byte, error) {
	env := newEnvelope(baseURL, now)
	for _, k := range sortedKeys(req.Args) {
		env.Request.Attrs = append(env.Request.Attrs, xml.Attr{
			Name:  xml.Name{Local: k},
			Value: req.Args[k],
		})
	}
	env.Body = body
	return marshalEnvelope(env)
}

// assembleError renders an error envelope. No arguments are echoed.
func assembleError(baseURL string, now time.Time, e *OAIError) ([]byte, error) {
	env := newEnvelope(baseURL, now)
	env.Body = &errorElem{Code: e.Code(), Message: e.Message}
	return marshalEnvelope(env)
}

func newEnvelope(baseURL string, now time.Time) *envelope {
	return &envelope{
		Xmlns:          Namespace,
		XmlnsXSI:       xsiNamespace,
		SchemaLocation: SchemaLocation,
		Date:           FormatDatestamp(GranularitySeconds, now),
		Request:        requestElem{URL: baseURL},
	}
}

func marshalEnvelope(env *envelope) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(XMLHeader)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(env); err != nil {
		return nil, Internalf(err, "cannot marshal response")
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

var xmlDeclaration = regexp.MustCompile(`^\s*<\?xml[^>]*\?>\s*`)

// newFragment strips a leading XML declaration from b and makes sure the
// rest is well-formed.
func newFragment(b []byte) (fragment, error) {
	b = xmlDeclaration.ReplaceAll(b, nil)
	if err := checkFragment(b); err != nil {
		return fragment{}, Internalf(err, "malformed XML fragment")
	}
	return fragment{Raw: string(bytes.TrimSpace(b))}, nil
}

func newFragments(bs [][]byte) ([]fragment, error) {
	var fs []fragment
	for _, b := range bs {
		f, err := newFragment(b)
		if err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	return fs, nil
}

// checkFragment reports whether b is a sequence of well-formed elements.
func checkFragment(b []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(b))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
