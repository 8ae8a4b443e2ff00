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

	"golang.org/x/sync/errgroup"
)

// Info summarizes a repository.
type Info struct {
	Identify *Identify        `json:"id"`
	Sets     []Set            `json:"sets,omitempty"`
	Formats  []MetadataFormat `json:"formats"`
	Elapsed  float64          `json:"elapsed"`
}

// Info gathers the repository description, sets and formats concurrently.
// A repository without sets has an empty set list.
func (r *Repository) Info(ctx context.Context) (*Info, error) {
	start := r.now()
	c := r.newCall(nil, start)
	info := &Info{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id, err := c.identify(ctx)
		info.Identify = id
		return err
	})
	g.Go(func() error {
		formats, err := c.formats(ctx, "")
		info.Formats = formats
		return err
	})
	g.Go(func() error {
		sets, err := c.allSets(ctx)
		info.Sets = sets
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	info.Elapsed = r.now().Sub(start).Seconds()
	return info, nil
}

// allSets pages through all set specs.
func (c *call) allSets(ctx context.Context) ([]Set, error) {
	limit := c.repo.config.PageSize
	var sets []Set
	for cursor := 0; ; cursor += limit {
		page, err := c.data.ListSetSpecs(ctx, "", cursor, limit)
		if oe, ok := AsOAIError(err); ok && oe.Kind == NoSetHierarchy {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		for _, spec := range page.Items {
			set, err := c.data.Set(ctx, spec)
			if err != nil {
				return nil, err
			}
			sets = append(sets, *set)
		}
		if len(page.Items) < limit || (page.Total != UnknownSize && cursor+limit >= page.Total) {
			return sets, nil
		}
	}
}
