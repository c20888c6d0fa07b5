package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kvbfs-project/kvbfs/cfg"
	"github.com/kvbfs-project/kvbfs/internal/logger"
)

func TestResolveDBPathPrecedence(t *testing.T) {
	var c cfg.Config

	t.Setenv(dbPathEnvVar, "")
	assert.Equal(t, defaultDBPath, resolveDBPath(&c))

	t.Setenv(dbPathEnvVar, "/var/lib/kvbfs")
	assert.Equal(t, "/var/lib/kvbfs", resolveDBPath(&c))

	c.KVStore.Path = "/explicit/path"
	assert.Equal(t, "/explicit/path", resolveDBPath(&c))
}

func TestResolveOwnershipDefaultsToProcess(t *testing.T) {
	var c cfg.Config
	c.FileSystem.Uid = -1
	c.FileSystem.Gid = -1

	uid, gid := resolveOwnership(&c)
	assert.Equal(t, uint32(os.Getuid()), uid)
	assert.Equal(t, uint32(os.Getgid()), gid)

	c.FileSystem.Uid = 1000
	c.FileSystem.Gid = 1000
	uid, gid = resolveOwnership(&c)
	assert.Equal(t, uint32(1000), uid)
	assert.Equal(t, uint32(1000), gid)
}

func TestSeverityToLevel(t *testing.T) {
	assert.Equal(t, logger.LevelTrace, severityToLevel(cfg.TraceLogSeverity))
	assert.Equal(t, logger.LevelError, severityToLevel(cfg.ErrorLogSeverity))
	assert.Equal(t, logger.LevelInfo, severityToLevel(cfg.LogSeverity("")))
}
