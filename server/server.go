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
// Package server exposes a repository over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/miku/oairepo"
	"go.uber.org/zap"
)

// ContentType of every protocol response.
const ContentType = "text/xml; charset=utf-8"

// Options configure a Server.
type Options struct {
	// Path of the protocol endpoint, "/oai" if empty.
	Path            string
	Gzip            bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// Server answers OAI-PMH requests.
type Server struct {
	repo    *oairepo.Repository
	options Options
	logger  *zap.Logger
	echo    *echo.Echo
}

// New sets up routes and middleware.
func New(repo *oairepo.Repository, options Options) *Server {
	if options.Path == "" {
		options.Path = "/oai"
	}
	if options.ShutdownTimeout <= 0 {
		options.ShutdownTimeout = 10 * time.Second
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{repo: repo, options: options, logger: logger, echo: echo.New()}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = options.ReadTimeout
	e.Server.WriteTimeout = options.WriteTimeout
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("id", v.RequestID),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if options.Gzip {
		e.Use(middleware.Gzip())
	}
	e.GET(options.Path, s.handleOAI)
	e.POST(options.Path, s.handleOAI)
	e.GET("/health", s.handleHealth)
	return s
}

// Handler returns the HTTP handler, e.g. for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// handleOAI takes arguments from the query string on GET and from the
// urlencoded body on POST.
func (s *Server) handleOAI(c echo.Context) error {
	var vals url.Values
	switch c.Request().Method {
	case http.MethodPost:
		if err := c.Request().ParseForm(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot parse form")
		}
		vals = c.Request().PostForm
	default:
		vals = c.QueryParams()
	}
	resp, err := s.repo.ProcessValues(c.Request().Context(), vals)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)).SetInternal(err)
	}
	return c.Blob(http.StatusOK, ContentType, resp.XML)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Run serves on addr until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr), zap.String("path", s.options.Path))
		errc <- s.echo.Start(addr)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
