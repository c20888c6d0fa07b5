package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArgsRequiresExactlyOneMountPoint(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"no args", nil, true},
		{"one arg", []string{"/mnt/kvbfs"}, false},
		{"two args", []string{"/mnt/kvbfs", "extra"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rootCmd.Args(rootCmd, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPersistentFlagDefaults(t *testing.T) {
	assert.NoError(t, bindErr)

	flags := rootCmd.PersistentFlags()
	for _, name := range []string{"foreground", "debug", "single-threaded", "kv-engine", "file-mode", "dir-mode", "log-severity"} {
		assert.NotNil(t, flags.Lookup(name), "expected flag %q to be registered", name)
	}

	f, err := flags.GetString("kv-engine")
	assert.NoError(t, err)
	assert.Equal(t, "embedded", f)
}
