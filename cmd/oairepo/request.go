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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var requestCmd = &cobra.Command{
	Use:   "request key=value...",
	Short: "Answer a single request and write the XML to stdout",
	Example: `  oairepo request verb=Identify
  oairepo request verb=GetRecord identifier=oai:example.org:1 metadataPrefix=oai_dc`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := parseArgs(args)
		if err != nil {
			return err
		}
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.logger.Sync()
		resp, err := a.repo.Process(cmd.Context(), m)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(resp.XML)
		return err
	},
}

// parseArgs turns key=value pairs into a map. Repeated keys are rejected.
func parseArgs(args []string) (map[string]string, error) {
	m := make(map[string]string)
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("want key=value, got %q", arg)
		}
		if _, dup := m[k]; dup {
			return nil, fmt.Errorf("repeated argument %q", k)
		}
		m[k] = v
	}
	return m, nil
}

func init() {
	rootCmd.AddCommand(requestCmd)
}
