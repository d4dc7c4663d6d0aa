package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/economy"
	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/postgres"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Principal is an authenticated API caller: the ledger address it acts as
// and the roles its token carries.
type Principal struct {
	Address economy.Address
	Roles   []economy.Role
}

type Config struct {
	Logger     *slog.Logger
	ListenAddr string

	Ledger   *economy.Ledger
	Issuer   *economy.Issuer
	Splitter *economy.Splitter

	// Journal is optional; history endpoints 404 without it.
	Journal *postgres.Journal

	// Tokens maps bearer tokens to principals.
	Tokens map[string]Principal

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo

	// RequestsPerMinute caps mutating requests per token. Zero selects
	// 300 with a burst of 30.
	RequestsPerMinute int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.Issuer == nil {
		return errors.New("issuer is required")
	}
	if cfg.Splitter == nil {
		return errors.New("splitter is required")
	}
	if len(cfg.Tokens) == 0 {
		return errors.New("at least one API token is required")
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 300
	}
	return nil
}
