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
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/miku/oairepo"
	"github.com/sethgrid/pester"
)

// UserAgent is sent with every API call.
var UserAgent = "oairepo (https://github.com/miku/oairepo)"

// HttpRequestDoer lets us use pester, http.DefaultClient or other HTTP
// client implementations interchangeably.
type HttpRequestDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// NewClient creates a resilient HTTP client.
func NewClient(timeout time.Duration, maxRetries int) HttpRequestDoer {
	c := pester.New()
	c.Timeout = timeout
	c.MaxRetries = maxRetries
	c.Backoff = pester.ExponentialBackoff
	return c
}

// get fetches a URL. Transport failures and non-200 responses are external
// faults.
func get(ctx context.Context, doer HttpRequestDoer, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, oairepo.Internalf(err, "invalid API URL %s", link)
	}
	req.Header.Set("User-Agent", UserAgent)
	resp, err := doer.Do(req)
	if err != nil {
		return nil, oairepo.Externalf(err, "call to API failed: %s", link)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, oairepo.Externalf(fmt.Errorf("status %d", resp.StatusCode), "call to API failed: %s", link)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, oairepo.Externalf(err, "cannot read API response: %s", link)
	}
	return b, nil
}
