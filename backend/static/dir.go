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
package static

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrBadKey is returned for keys that would leave the metadata directory.
var ErrBadKey = errors.New("bad key")

// MetadataDir serves metadata documents stored as files below a root
// directory, one directory per record: <root>/<localId>/<localMetadataId>.xml.
type MetadataDir struct {
	directory string
}

// NewMetadataDir makes directory absolute. It does not need to exist.
func NewMetadataDir(directory string) (*MetadataDir, error) {
	abs, err := filepath.Abs(directory)
	if err != nil {
		return nil, err
	}
	return &MetadataDir{directory: abs}, nil
}

// cleanKey turns a relative key into a path below the root directory.
func (d *MetadataDir) cleanKey(k string) (string, error) {
	s := filepath.Clean(path.Join(d.directory, k))
	if s != d.directory && !strings.HasPrefix(s, d.directory+string(filepath.Separator)) {
		return "", ErrBadKey
	}
	return s, nil
}

// Path returns the file of a record in a format.
func (d *MetadataDir) Path(localID, localMetadataID string) (string, error) {
	if localID == "" || localMetadataID == "" {
		return "", ErrBadKey
	}
	return d.cleanKey(path.Join(localID, localMetadataID+".xml"))
}

// Has reports whether there is a document for the record in the format.
func (d *MetadataDir) Has(localID, localMetadataID string) bool {
	p, err := d.Path(localID, localMetadataID)
	if err != nil {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// Get reads a document.
func (d *MetadataDir) Get(localID, localMetadataID string) ([]byte, error) {
	p, err := d.Path(localID, localMetadataID)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", localID, localMetadataID, err)
	}
	return os.ReadFile(p)
}
