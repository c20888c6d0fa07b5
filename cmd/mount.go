package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/timeutil"
	"github.com/kardianos/osext"

	"github.com/kvbfs-project/kvbfs/cfg"
	"github.com/kvbfs-project/kvbfs/internal/fsconn"
	"github.com/kvbfs-project/kvbfs/internal/kv"
	"github.com/kvbfs-project/kvbfs/internal/logger"
	"github.com/kvbfs-project/kvbfs/internal/metrics"
	"github.com/kvbfs-project/kvbfs/internal/vfs"
)

// dbPathEnvVar names the environment variable carrying the embedded
// engine's default database path, per the CLI contract.
const dbPathEnvVar = "KVBFS_DB_PATH"
const defaultDBPath = "/tmp/kvbfs_data"

// inBackgroundEnvVar marks a re-exec'd child as already running in the
// background, the way gcsfuse's logger.GCSFuseInBackgroundMode does.
const inBackgroundEnvVar = "KVBFS_IN_BACKGROUND_MODE"

const socketName = ".kvbfs.sock"

type mountOptions struct {
	Foreground     bool
	SingleThreaded bool
}

// runMount either daemonizes (re-executing itself with --foreground) or
// serves the mount directly, mirroring cmd/legacy_main.go's
// foreground-vs-background dance.
func runMount(ctx context.Context, mountPoint string, c *cfg.Config, opts mountOptions) error {
	configureLogger(c)

	if !opts.Foreground {
		return daemonizeSelf(mountPoint)
	}

	m, err := prepareMount(mountPoint, c)

	// Whether we're the re-exec'd child or a plain interactive run, tell
	// whoever might be listening on daemonize's status pipe how the mount
	// went; when there is no such pipe this merely logs, exactly as
	// legacy_main.go's callDaemonizeSignalOutcome does. Signaling happens
	// once the mount is established, not once serving stops.
	if sigErr := daemonize.SignalOutcome(err); sigErr != nil {
		logger.Warnf("signaling mount outcome to parent process: %v", sigErr)
	}
	if err != nil {
		return err
	}
	defer m.store.Close()
	defer m.listener.Close()

	logger.Infof("kvbfs mounted at %s; dispatcher socket %s", mountPoint, m.sockPath)
	return fsconn.ListenAndServe(ctx, m.listener, m.fs, !opts.SingleThreaded)
}

func configureLogger(c *cfg.Config) {
	format := logger.FormatText
	if c.Logging.Format == cfg.LogFormatJSON {
		format = logger.FormatJSON
	}
	logger.SetDefault(logger.New(os.Stderr, format, severityToLevel(c.Logging.Severity)))
}

func severityToLevel(s cfg.LogSeverity) logger.Severity {
	switch s {
	case cfg.TraceLogSeverity:
		return logger.LevelTrace
	case cfg.DebugLogSeverity:
		return logger.LevelDebug
	case cfg.WarningLogSeverity:
		return logger.LevelWarn
	case cfg.ErrorLogSeverity:
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

// daemonizeSelf re-execs the current binary in the foreground with the
// mount point canonicalized, waiting for it to either report a successful
// mount or fail, grounded directly on cmd/legacy_main.go's osext.
// Executable + daemonize.Run pair.
func daemonizeSelf(mountPoint string) error {
	path, err := osext.Executable()
	if err != nil {
		return fmt.Errorf("osext.Executable: %w", err)
	}

	args := append([]string{"--foreground"}, os.Args[1:]...)
	args[len(args)-1] = mountPoint

	env := []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		fmt.Sprintf("%s=true", inBackgroundEnvVar),
	}
	if p, ok := os.LookupEnv(dbPathEnvVar); ok {
		env = append(env, fmt.Sprintf("%s=%s", dbPathEnvVar, p))
	}
	if wd, err := os.Getwd(); err == nil {
		env = append(env, fmt.Sprintf("PWD=%s", wd))
	}

	if err := daemonize.Run(path, args, env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	fmt.Fprintf(os.Stdout, "File system mounted at %s.\n", mountPoint)
	return nil
}

// mount bundles everything serving needs: the store to close on shutdown,
// the dispatcher socket, and the FileSystem bound to it.
type mount struct {
	store    kv.Store
	listener net.Listener
	fs       *vfs.FileSystem
	sockPath string
}

// prepareMount opens the key-value store, builds the FileSystem, and
// starts listening on the mount point's dispatcher socket, without
// serving any requests yet — mirroring mountWithArgs's separation from
// mfs.Join in cmd/legacy_main.go, so a daemonized parent can be told the
// mount succeeded before the child starts blocking on the serve loop.
func prepareMount(mountPoint string, c *cfg.Config) (*mount, error) {
	store, err := openStore(c)
	if err != nil {
		return nil, fmt.Errorf("opening key-value store: %w", err)
	}

	metricsHandle, metricsHandler := metrics.New()
	if c.Metrics.Address != "" {
		go serveMetrics(c.Metrics.Address, metricsHandler)
	}

	uid, gid := resolveOwnership(c)

	fs, err := vfs.New(store, vfs.Config{
		Clock:    timeutil.RealClock(),
		UID:      uid,
		GID:      gid,
		FileMode: uint32(c.FileSystem.FileMode),
		DirMode:  uint32(c.FileSystem.DirMode),
		Metrics:  metricsHandle,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("initializing file system: %w", err)
	}

	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		store.Close()
		return nil, fmt.Errorf("creating mount point %s: %w", mountPoint, err)
	}

	sockPath := filepath.Join(mountPoint, socketName)
	os.Remove(sockPath)
	l, err := net.Listen("unix", sockPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("listening on dispatcher socket: %w", err)
	}

	return &mount{store: store, listener: l, fs: fs, sockPath: sockPath}, nil
}

func serveMetrics(addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("metrics server on %s exited: %v", addr, err)
	}
}

func openStore(c *cfg.Config) (kv.Store, error) {
	if c.KVStore.Engine == cfg.EngineNetworked {
		if c.KVStore.NetworkAddress == "" {
			return nil, fmt.Errorf("kv-store.engine=networked requires --kv-network-address")
		}
		return kv.DialNetworked(c.KVStore.NetworkAddress, 10*time.Second)
	}

	path := resolveDBPath(c)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory for %s: %w", path, err)
	}
	return kv.OpenEmbedded(path)
}

func resolveDBPath(c *cfg.Config) string {
	if c.KVStore.Path != "" {
		return string(c.KVStore.Path)
	}
	if p, ok := os.LookupEnv(dbPathEnvVar); ok && p != "" {
		return p
	}
	return defaultDBPath
}

func resolveOwnership(c *cfg.Config) (uid, gid uint32) {
	uid, gid = uint32(os.Getuid()), uint32(os.Getgid())
	if c.FileSystem.Uid >= 0 {
		uid = uint32(c.FileSystem.Uid)
	}
	if c.FileSystem.Gid >= 0 {
		gid = uint32(c.FileSystem.Gid)
	}
	return uid, gid
}

