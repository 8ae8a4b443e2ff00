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
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/miku/oairepo/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gzip, err := advertisesGzip(ctx, a)
		if err != nil {
			return err
		}
		sc := a.config.Server
		srv := server.New(a.repo, server.Options{
			Path:            sc.Path,
			Gzip:            gzip,
			ReadTimeout:     sc.ReadTimeout,
			WriteTimeout:    sc.WriteTimeout,
			ShutdownTimeout: sc.ShutdownTimeout,
			Logger:          a.logger.Named("http"),
		})
		g, ctx := errgroup.WithContext(ctx)
		if a.static != nil && a.config.Backend.Static.Watch {
			g.Go(func() error {
				a.logger.Info("watching for changes", zap.String("file", a.config.Backend.Static.File))
				return a.static.Watch(ctx)
			})
		}
		g.Go(func() error {
			return srv.Run(ctx, sc.Addr)
		})
		return g.Wait()
	},
}

// advertisesGzip reports whether the repository lists gzip compression.
func advertisesGzip(ctx context.Context, a *app) (bool, error) {
	id, err := a.data.Identify(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range id.Compression {
		if c == "gzip" {
			return true, nil
		}
	}
	return false, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
