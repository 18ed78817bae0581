// Package config implements the engine's Settings (spec §4.11 table) and
// a JSON loader in the donor's singleton-from-JSON style (utils/config),
// generalized from the donor's GUI/LSM/cache/WAL/SSTable/memtable/bloom/
// block-manager/CRC/token-bucket sections to the engine's actual options.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hunddb/engine/compression"
	"github.com/hunddb/engine/lsmerrors"

	"go.uber.org/zap"
)

// Settings enumerates the options from spec §4.11, with the defaults
// named there.
type Settings struct {
	DBPath string `json:"db_path"`

	MemTableMaxSize uint64 `json:"mem_table_max_size"`

	WalEnabled bool   `json:"wal_enabled"`
	WalMaxSize int64  `json:"wal_max_size"`

	BloomFPR float64 `json:"bloom_fpr"`

	BloomCacheEnabled bool `json:"bloom_cache_enabled"`

	IndexCacheEnabled bool  `json:"index_cache_enabled"`
	IndexCacheEntries int   `json:"index_cache_entries"`
	IndexCacheBytes   int64 `json:"index_cache_bytes"`

	ValueCacheEnabled bool  `json:"value_cache_enabled"`
	ValueCacheEntries int   `json:"value_cache_entries"`
	ValueCacheBytes   int64 `json:"value_cache_bytes"`

	Compressor compression.Config `json:"-"`

	// Logger is injected rather than read from a hidden global (spec §9
	// "Global lazy initialization... rephrase as a process-scoped
	// one-time-init hook... do not rely on hidden statics"). Nil selects
	// a production JSON logger at Open time.
	Logger *zap.SugaredLogger `json:"-"`
}

// Default returns the defaults enumerated in spec §4.11.
func Default() Settings {
	return Settings{
		DBPath:            "./db",
		MemTableMaxSize:   10000,
		WalEnabled:        true,
		WalMaxSize:        10 * 1 << 20,
		BloomFPR:          0.01,
		BloomCacheEnabled: true,
		IndexCacheEnabled: true,
		IndexCacheEntries: 100,
		IndexCacheBytes:   100 * 1 << 20,
		ValueCacheEnabled: true,
		ValueCacheEntries: 200000,
		ValueCacheBytes:   200 * 1 << 20,
		Compressor:        compression.Balanced(),
	}
}

// Validate fails at open per spec §7 Configuration: "Settings
// inconsistent (e.g., bad cache bounds)".
func (s Settings) Validate() error {
	const op = "config.Validate"
	if s.DBPath == "" {
		return lsmerrors.ConfigurationErr(op, fmt.Errorf("db_path must not be empty"))
	}
	if s.MemTableMaxSize == 0 {
		return lsmerrors.ConfigurationErr(op, fmt.Errorf("mem_table_max_size must be at least 1"))
	}
	if s.WalEnabled && s.WalMaxSize <= 0 {
		return lsmerrors.ConfigurationErr(op, fmt.Errorf("wal_max_size must be positive"))
	}
	if s.BloomFPR <= 0 || s.BloomFPR >= 1 {
		return lsmerrors.ConfigurationErr(op, fmt.Errorf("bloom_fpr must be in (0, 1)"))
	}
	if s.IndexCacheEnabled && (s.IndexCacheEntries <= 0 || s.IndexCacheBytes <= 0) {
		return lsmerrors.ConfigurationErr(op, fmt.Errorf("index cache bounds must be positive"))
	}
	if s.ValueCacheEnabled && (s.ValueCacheEntries <= 0 || s.ValueCacheBytes <= 0) {
		return lsmerrors.ConfigurationErr(op, fmt.Errorf("value cache bounds must be positive"))
	}
	return nil
}

// jsonSettings mirrors Settings' JSON-tagged fields only; Compressor and
// Logger are not round-tripped through JSON (the donor's own config never
// serializes runtime collaborators either).
type jsonSettings struct {
	DBPath            string  `json:"db_path"`
	MemTableMaxSize   uint64  `json:"mem_table_max_size"`
	WalEnabled        bool    `json:"wal_enabled"`
	WalMaxSize        int64   `json:"wal_max_size"`
	BloomFPR          float64 `json:"bloom_fpr"`
	BloomCacheEnabled bool    `json:"bloom_cache_enabled"`
	IndexCacheEnabled bool    `json:"index_cache_enabled"`
	IndexCacheEntries int     `json:"index_cache_entries"`
	IndexCacheBytes   int64   `json:"index_cache_bytes"`
	ValueCacheEnabled bool    `json:"value_cache_enabled"`
	ValueCacheEntries int     `json:"value_cache_entries"`
	ValueCacheBytes   int64   `json:"value_cache_bytes"`
}

// Load reads Settings from a JSON file at path, falling back to Default
// (written back to path) when it doesn't exist yet, in the donor's
// getDefaultConfig-on-first-run pattern.
func Load(path string) (Settings, error) {
	const op = "config.Load"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		def := Default()
		if err := Save(path, def); err != nil {
			return Settings{}, err
		}
		return def, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, lsmerrors.IO(op, err)
	}

	var js jsonSettings
	if err := json.Unmarshal(data, &js); err != nil {
		return Settings{}, lsmerrors.ConfigurationErr(op, err)
	}

	s := Default()
	s.DBPath = js.DBPath
	s.MemTableMaxSize = js.MemTableMaxSize
	s.WalEnabled = js.WalEnabled
	s.WalMaxSize = js.WalMaxSize
	s.BloomFPR = js.BloomFPR
	s.BloomCacheEnabled = js.BloomCacheEnabled
	s.IndexCacheEnabled = js.IndexCacheEnabled
	s.IndexCacheEntries = js.IndexCacheEntries
	s.IndexCacheBytes = js.IndexCacheBytes
	s.ValueCacheEnabled = js.ValueCacheEnabled
	s.ValueCacheEntries = js.ValueCacheEntries
	s.ValueCacheBytes = js.ValueCacheBytes
	return s, nil
}

// Save writes s to path as indented JSON (donor's saveConfigToFile).
func Save(path string, s Settings) error {
	const op = "config.Save"
	js := jsonSettings{
		DBPath:            s.DBPath,
		MemTableMaxSize:   s.MemTableMaxSize,
		WalEnabled:        s.WalEnabled,
		WalMaxSize:        s.WalMaxSize,
		BloomFPR:          s.BloomFPR,
		BloomCacheEnabled: s.BloomCacheEnabled,
		IndexCacheEnabled: s.IndexCacheEnabled,
		IndexCacheEntries: s.IndexCacheEntries,
		IndexCacheBytes:   s.IndexCacheBytes,
		ValueCacheEnabled: s.ValueCacheEnabled,
		ValueCacheEntries: s.ValueCacheEntries,
		ValueCacheBytes:   s.ValueCacheBytes,
	}
	data, err := json.MarshalIndent(js, "", "  ")
	if err != nil {
		return lsmerrors.ConfigurationErr(op, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return lsmerrors.IO(op, err)
	}
	return nil
}
