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
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/miku/oairepo"
	"go.uber.org/zap"
)

// settle is how long files must be quiet before a reload.
const settle = 500 * time.Millisecond

// Backend serves the latest successfully loaded snapshot. Each request
// sees a single snapshot through Scope, even if a reload happens meanwhile.
type Backend struct {
	config  Config
	logger  *zap.Logger
	current atomic.Pointer[snapshot]
}

// New loads the repository described by config.
func New(config Config, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backend{config: config, logger: logger}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Reload reads the data again. On failure the previous data stays active.
func (b *Backend) Reload() error {
	s, err := load(b.config)
	if err != nil {
		return err
	}
	b.current.Store(s)
	b.logger.Info("repository loaded",
		zap.String("file", b.config.File),
		zap.Int("records", len(s.records)),
		zap.Int("sets", len(s.sets)),
		zap.String("state", s.state))
	return nil
}

// Watch reloads the data whenever the data file or the top level of the
// metadata directory changes, until ctx is done.
func (b *Backend) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	file, err := filepath.Abs(b.config.File)
	if err != nil {
		return err
	}
	// Editors often replace files, so watch the directory.
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		return err
	}
	var dir string
	if b.config.MetadataDir != "" {
		if dir, err = filepath.Abs(b.config.MetadataDir); err != nil {
			return err
		}
		if err := watcher.Add(dir); err != nil {
			return err
		}
		// Metadata lives one level down, in a directory per record.
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if err := watcher.Add(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}

	ticker := time.NewTicker(settle / 5)
	defer ticker.Stop()
	var changed time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Clean(event.Name)
			if name == file || (dir != "" && strings.HasPrefix(name, dir+string(filepath.Separator))) {
				changed = time.Now()
			}
			if dir != "" && filepath.Dir(name) == dir && event.Has(fsnotify.Create) {
				if fi, err := os.Stat(name); err == nil && fi.IsDir() {
					_ = watcher.Add(name)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			b.logger.Warn("watch failed", zap.Error(err))
		case <-ticker.C:
			if changed.IsZero() || time.Since(changed) < settle {
				continue
			}
			changed = time.Time{}
			if err := b.Reload(); err != nil {
				b.logger.Error("reload failed, keeping previous data", zap.Error(err))
			}
		}
	}
}

// Scope implements oairepo.Scoper.
func (b *Backend) Scope() oairepo.Data {
	return b.current.Load()
}

func (b *Backend) Identify(ctx context.Context) (*oairepo.Identify, error) {
	return b.current.Load().Identify(ctx)
}

func (b *Backend) IsValidIdentifier(ctx context.Context, identifier string) (bool, error) {
	return b.current.Load().IsValidIdentifier(ctx, identifier)
}

func (b *Backend) MetadataFormats(ctx context.Context, identifier string) ([]oairepo.MetadataFormat, error) {
	return b.current.Load().MetadataFormats(ctx, identifier)
}

func (b *Backend) RecordHeader(ctx context.Context, identifier string) (*oairepo.RecordHeader, error) {
	return b.current.Load().RecordHeader(ctx, identifier)
}

func (b *Backend) RecordMetadata(ctx context.Context, identifier, prefix string) ([]byte, error) {
	return b.current.Load().RecordMetadata(ctx, identifier, prefix)
}

func (b *Backend) RecordAbouts(ctx context.Context, identifier string) ([][]byte, error) {
	return b.current.Load().RecordAbouts(ctx, identifier)
}

func (b *Backend) ListSetSpecs(ctx context.Context, identifier string, cursor, limit int) (oairepo.Page, error) {
	return b.current.Load().ListSetSpecs(ctx, identifier, cursor, limit)
}

func (b *Backend) Set(ctx context.Context, spec string) (*oairepo.Set, error) {
	return b.current.Load().Set(ctx, spec)
}

func (b *Backend) ListIdentifiers(ctx context.Context, q oairepo.ListQuery) (oairepo.Page, error) {
	return b.current.Load().ListIdentifiers(ctx, q)
}
