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
// oairepo serves a metadata repository over OAI-PMH.
//
//	$ oairepo --config repo.yaml serve
//	$ oairepo --config repo.yaml request verb=ListSets
//	$ oairepo --config repo.yaml info
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/miku/oairepo"
	"github.com/miku/oairepo/backend/api"
	"github.com/miku/oairepo/backend/static"
	"github.com/miku/oairepo/config"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// DefaultConfigFile is used if no --config is given and the file exists.
const DefaultConfigFile = "~/.oairepo.yaml"

var (
	cfgFile  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:           "oairepo",
		Short:         "OAI-PMH repository server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is "+DefaultConfigFile+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides log.level")
}

// app bundles what the commands need.
type app struct {
	config *config.Config
	logger *zap.Logger
	data   oairepo.Data
	static *static.Backend
	repo   *oairepo.Repository
}

// setup loads the configuration and opens the backend.
func setup() (*app, error) {
	filename := cfgFile
	if filename == "" {
		f, err := homedir.Expand(DefaultConfigFile)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(f); err == nil {
			filename = f
		}
	}
	c, err := config.Load(filename)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	logger, err := c.Log.Logger()
	if err != nil {
		return nil, err
	}
	a := &app{config: c, logger: logger}
	switch c.Backend.Type {
	case config.BackendStatic:
		b, err := static.New(c.Backend.Static, logger.Named("static"))
		if err != nil {
			return nil, err
		}
		a.data, a.static = b, b
	case config.BackendAPI:
		b, err := api.New(c.Backend.API, api.WithLogger(logger.Named("api")))
		if err != nil {
			return nil, err
		}
		a.data = b
	default:
		return nil, fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}
	a.repo = oairepo.New(a.data, c.RepositoryConfig(), oairepo.WithLogger(logger))
	return a, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
