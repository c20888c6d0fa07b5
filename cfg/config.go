package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of tunables for one kvbfs mount, filled via
// viper from the CLI flags BindFlags registers. Environment variables
// and config files are not read into it.
type Config struct {
	KVStore    KVStoreConfig    `yaml:"kv-store"`
	FileSystem FileSystemConfig `yaml:"file-system"`
	Versions   VersionsConfig   `yaml:"versions"`
	Events     EventsConfig     `yaml:"events"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Debug      DebugConfig      `yaml:"debug"`
}

// MetricsConfig controls the promhttp endpoint exposing kvbfs's counters
// and gauges.
type MetricsConfig struct {
	// Address is the "host:port" the metrics HTTP server listens on.
	// Empty disables the endpoint entirely.
	Address string `yaml:"address"`
}

// KVStoreConfig selects and locates the backing key-value store.
type KVStoreConfig struct {
	// Engine is "embedded" (a local bbolt file) or "networked" (the
	// wire-protocol client dialing a kv.NetworkedServer).
	Engine Engine `yaml:"engine"`

	// Path is the embedded engine's database file. Defaults to
	// KVBFS_DB_PATH, or /tmp/kvbfs_data if that's unset.
	Path ResolvedPath `yaml:"path"`

	// NetworkAddress is the networked engine's "host:port".
	NetworkAddress string `yaml:"network-address"`
}

// FileSystemConfig carries the ownership and permission bits stamped on
// new inodes.
type FileSystemConfig struct {
	// Uid/Gid own every inode. -1 means "use the mounting process's own
	// uid/gid", resolved in cmd/ the way gcsfuse resolves FileSystem.Uid.
	Uid int `yaml:"uid"`
	Gid int `yaml:"gid"`

	FileMode Octal `yaml:"file-mode"`
	DirMode  Octal `yaml:"dir-mode"`
}

// VersionsConfig tunes the per-file version history.
type VersionsConfig struct {
	// RetentionCap bounds how many versions a single file keeps before the
	// oldest is pruned on snapshot.
	RetentionCap int `yaml:"retention-cap"`
}

// EventsConfig tunes the in-memory mutation-event ring.
type EventsConfig struct {
	// RingSizeBytes bounds the ring's total buffered line length before
	// the oldest events are dropped to make room for new ones.
	RingSizeBytes int `yaml:"ring-size-bytes"`
}

// LoggingConfig selects the process-wide logger's verbosity and encoding.
type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`
	Format   LogFormat   `yaml:"format"`
}

// DebugConfig toggles developer-facing behavior.
type DebugConfig struct {
	// ExitOnInvariantViolation crashes the process instead of merely
	// logging when a syncutil.InvariantMutex check fails, matching
	// gcsfuse's own debug.exit-on-invariant-violation flag.
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
}

// BindFlags registers every Config field as a flag on flagSet and binds it
// to viper under the same dotted key its yaml tag implies, so that
// viper.Unmarshal(&Config{}), decoding by yaml tag, later fills the
// struct from the flags.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("kv-engine", "", string(EngineEmbedded), "Key-value backend: embedded or networked.")
	err = viper.BindPFlag("kv-store.engine", flagSet.Lookup("kv-engine"))
	if err != nil {
		return err
	}

	flagSet.StringP("kv-path", "", "", "Path to the embedded key-value database file.")
	err = viper.BindPFlag("kv-store.path", flagSet.Lookup("kv-path"))
	if err != nil {
		return err
	}

	flagSet.StringP("kv-network-address", "", "", "host:port of a networked key-value server, when --kv-engine=networked.")
	err = viper.BindPFlag("kv-store.network-address", flagSet.Lookup("kv-network-address"))
	if err != nil {
		return err
	}

	flagSet.IntP("uid", "", -1, "UID owner of all inodes. -1 uses the mounting process's own UID.")
	err = viper.BindPFlag("file-system.uid", flagSet.Lookup("uid"))
	if err != nil {
		return err
	}

	flagSet.IntP("gid", "", -1, "GID owner of all inodes. -1 uses the mounting process's own GID.")
	err = viper.BindPFlag("file-system.gid", flagSet.Lookup("gid"))
	if err != nil {
		return err
	}

	flagSet.StringP("file-mode", "", "0644", "Permission bits for regular files, in octal.")
	err = viper.BindPFlag("file-system.file-mode", flagSet.Lookup("file-mode"))
	if err != nil {
		return err
	}

	flagSet.StringP("dir-mode", "", "0755", "Permission bits for directories, in octal.")
	err = viper.BindPFlag("file-system.dir-mode", flagSet.Lookup("dir-mode"))
	if err != nil {
		return err
	}

	flagSet.IntP("version-retention-cap", "", 64, "Maximum versions retained per file before the oldest is pruned.")
	err = viper.BindPFlag("versions.retention-cap", flagSet.Lookup("version-retention-cap"))
	if err != nil {
		return err
	}

	flagSet.IntP("event-ring-size-bytes", "", 256*1024, "Size in bytes of the in-memory mutation-event ring.")
	err = viper.BindPFlag("events.ring-size-bytes", flagSet.Lookup("event-ring-size-bytes"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", string(InfoLogSeverity), "Minimum log severity: TRACE, DEBUG, INFO, WARNING, or ERROR.")
	err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-format", "", string(LogFormatText), "Log encoding: text or json.")
	err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format"))
	if err != nil {
		return err
	}

	flagSet.StringP("metrics-address", "", "", "host:port to serve Prometheus metrics on. Empty disables the endpoint.")
	err = viper.BindPFlag("metrics.address", flagSet.Lookup("metrics-address"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug-invariants", "", false, "Exit the process when an internal invariant is violated.")
	err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug-invariants"))
	if err != nil {
		return err
	}

	return nil
}
