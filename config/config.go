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
// Package config loads the server configuration from a YAML file and
// OAIREPO_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/miku/oairepo"
	"github.com/miku/oairepo/backend/api"
	"github.com/miku/oairepo/backend/static"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes environment overrides, e.g. OAIREPO_SERVER_ADDR.
const EnvPrefix = "OAIREPO"

// Backend types.
const (
	BackendStatic = "static"
	BackendAPI    = "api"
)

// Config is the complete configuration.
type Config struct {
	Server     Server     `mapstructure:"server"`
	Log        Log        `mapstructure:"log"`
	Repository Repository `mapstructure:"repository"`
	Backend    Backend    `mapstructure:"backend"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr            string        `mapstructure:"addr"`
	Path            string        `mapstructure:"path"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// Log configures the logger.
type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Repository configures the protocol engine.
type Repository struct {
	BaseURL  string        `mapstructure:"baseURL"`
	PageSize int           `mapstructure:"pageSize"`
	TokenTTL time.Duration `mapstructure:"tokenTTL"`
}

// Backend selects and configures the data source.
type Backend struct {
	Type   string        `mapstructure:"type"`
	Static static.Config `mapstructure:"static"`
	API    api.Config    `mapstructure:"api"`
}

// Default returns the configuration used for unset values.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8000",
			Path:            "/oai",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: Log{Level: "info"},
		Repository: Repository{
			BaseURL:  "http://localhost:8000/oai",
			PageSize: oairepo.DefaultPageSize,
			TokenTTL: 24 * time.Hour,
		},
		Backend: Backend{Type: BackendStatic},
	}
}

// setDefaults registers the scalar defaults, so viper knows the keys and
// environment variables can override them.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.path", d.Server.Path)
	v.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdownTimeout", d.Server.ShutdownTimeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("repository.baseURL", d.Repository.BaseURL)
	v.SetDefault("repository.pageSize", d.Repository.PageSize)
	v.SetDefault("repository.tokenTTL", d.Repository.TokenTTL)
	v.SetDefault("backend.type", d.Backend.Type)
	v.SetDefault("backend.static.file", "")
	v.SetDefault("backend.static.metadataDir", "")
	v.SetDefault("backend.static.watch", false)
}

// Load reads the configuration file, if any, applies environment overrides
// and validates the result.
func Load(filename string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports the first problem found.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with /, got %q", c.Server.Path)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if !govalidator.IsURL(c.Repository.BaseURL) {
		return fmt.Errorf("repository.baseURL is not a URL: %q", c.Repository.BaseURL)
	}
	if c.Repository.PageSize < 1 {
		return fmt.Errorf("repository.pageSize must be positive, got %d", c.Repository.PageSize)
	}
	if c.Repository.TokenTTL < 0 {
		return fmt.Errorf("repository.tokenTTL must not be negative")
	}
	switch c.Backend.Type {
	case BackendStatic:
		if c.Backend.Static.File == "" {
			return fmt.Errorf("backend.static.file is required")
		}
	case BackendAPI:
		return c.Backend.API.Validate()
	default:
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}
	return nil
}

// RepositoryConfig returns the protocol engine settings.
func (c *Config) RepositoryConfig() oairepo.Config {
	return oairepo.Config{
		BaseURL:  c.Repository.BaseURL,
		PageSize: c.Repository.PageSize,
		TokenTTL: c.Repository.TokenTTL,
	}
}

// Logger builds a zap logger at the configured level.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
