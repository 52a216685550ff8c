// config.go - groupshare authority server configuration.
// Copyright (C) 2017  Yawning Angel.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config implements the groupshare authority server configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/katzenpost/groupshare/core/log"
	"github.com/katzenpost/groupshare/core/wire"
)

const (
	// DefaultAddress is the authority's default listen address.
	DefaultAddress = "127.0.0.1:8765"

	defaultIdentifier       = "ALPHA"
	defaultLogLevel         = "NOTICE"
	defaultSnapshotInterval = 120
	defaultAdminUser        = "admin"
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Server is the authority server configuration.
type Server struct {
	// Identifier is the human readable identifier for the authority,
	// used as the token issuer.
	Identifier string

	// Addresses are the IP address/port combinations that the server will
	// bind to for incoming connections.
	Addresses []string

	// DataDir is the absolute path to the server's state files.
	DataDir string

	// MaxConnections bounds the number of concurrently served connections,
	// 0 is unlimited.
	MaxConnections int
}

func (sCfg *Server) validate() error {
	if len(sCfg.Addresses) == 0 {
		sCfg.Addresses = []string{DefaultAddress}
	}
	for _, v := range sCfg.Addresses {
		if _, port, err := net.SplitHostPort(v); err != nil {
			return fmt.Errorf("config: Server: Address '%v' is invalid: %v", v, err)
		} else if port == "" {
			return fmt.Errorf("config: Server: Address '%v' is invalid: Must contain Port", v)
		}
	}
	if sCfg.Identifier == "" {
		sCfg.Identifier = defaultIdentifier
	}
	if len(sCfg.Identifier) > wire.MaxIdentityLength {
		return fmt.Errorf("config: Server: Identifier '%v' is too long", sCfg.Identifier)
	}
	if !filepath.IsAbs(sCfg.DataDir) {
		return fmt.Errorf("config: Server: DataDir '%v' is not an absolute path", sCfg.DataDir)
	}
	if sCfg.MaxConnections < 0 {
		return errors.New("config: Server: MaxConnections must not be negative")
	}
	return nil
}

// Logging is the authority logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch {
	case lvl == "":
		lvl = defaultLogLevel
	case !log.IsValidLevel(lvl):
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Persistence is the catalog persistence configuration.
type Persistence struct {
	// SnapshotInterval is the number of seconds between catalog
	// snapshots.
	SnapshotInterval int
}

// Interval returns the snapshot interval as a time.Duration.
func (pCfg *Persistence) Interval() time.Duration {
	return time.Duration(pCfg.SnapshotInterval) * time.Second
}

func (pCfg *Persistence) validate() error {
	if pCfg.SnapshotInterval < 0 {
		return errors.New("config: Persistence: SnapshotInterval must not be negative")
	}
	if pCfg.SnapshotInterval == 0 {
		pCfg.SnapshotInterval = defaultSnapshotInterval
	}
	return nil
}

// Metrics is the prometheus endpoint configuration.
type Metrics struct {
	// Address is the address the /metrics endpoint is served on, if
	// omitted metrics are collected but not served.
	Address string
}

// Bootstrap is the first run configuration.
type Bootstrap struct {
	// AdminUser is the name of the initial ADMIN user.
	AdminUser string

	// AdminPassword is the initial ADMIN user's password.  It is only
	// consulted when the catalog is empty.
	AdminPassword string
}

func (bCfg *Bootstrap) validate() error {
	if bCfg.AdminUser == "" {
		bCfg.AdminUser = defaultAdminUser
	}
	return nil
}

// Debug is the authority debug configuration.
type Debug struct {
	// GenerateOnly halts and cleans up the server right after long term
	// key generation.
	GenerateOnly bool

	// HandshakeTimeout is the number of seconds a peer has to complete
	// the handshake, 0 is unlimited.
	HandshakeTimeout int
}

// Config is the top level authority configuration.
type Config struct {
	Server      *Server
	Logging     *Logging
	Persistence *Persistence
	Metrics     *Metrics
	Bootstrap   *Bootstrap
	Debug       *Debug
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.  Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	// Handle missing sections if possible.
	if cfg.Server == nil {
		return errors.New("config: No Server block was present")
	}
	if cfg.Logging == nil {
		l := defaultLogging
		cfg.Logging = &l
	}
	if cfg.Persistence == nil {
		cfg.Persistence = &Persistence{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}
	if cfg.Bootstrap == nil {
		cfg.Bootstrap = &Bootstrap{}
	}
	if cfg.Debug == nil {
		cfg.Debug = &Debug{}
	}

	// Validate and fixup the various sections.
	if err := cfg.Server.validate(); err != nil {
		return err
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	if err := cfg.Persistence.validate(); err != nil {
		return err
	}
	if err := cfg.Bootstrap.validate(); err != nil {
		return err
	}
	if cfg.Debug.HandshakeTimeout < 0 {
		return errors.New("config: Debug: HandshakeTimeout must not be negative")
	}
	return nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte, forceGenOnly bool) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}

	if forceGenOnly {
		cfg.Debug.GenerateOnly = true
	}

	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string, forceGenOnly bool) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b, forceGenOnly)
}
