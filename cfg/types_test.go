package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOctalUnmarshalText(t *testing.T) {
	var o Octal
	assert.NoError(t, o.UnmarshalText([]byte("644")))
	assert.Equal(t, Octal(0o644), o)

	text, err := o.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "644", string(text))

	assert.Error(t, o.UnmarshalText([]byte("not-octal")))
}

func TestEngineUnmarshalText(t *testing.T) {
	var e Engine
	assert.NoError(t, e.UnmarshalText([]byte("EMBEDDED")))
	assert.Equal(t, EngineEmbedded, e)

	assert.NoError(t, e.UnmarshalText([]byte("networked")))
	assert.Equal(t, EngineNetworked, e)

	assert.Error(t, e.UnmarshalText([]byte("s3")))
}

func TestLogSeverityRank(t *testing.T) {
	assert.Less(t, TraceLogSeverity.Rank(), DebugLogSeverity.Rank())
	assert.Less(t, ErrorLogSeverity.Rank(), LogSeverity("BOGUS").Rank()+100) // bogus ranks -1
	assert.Equal(t, -1, LogSeverity("BOGUS").Rank())

	var s LogSeverity
	assert.NoError(t, s.UnmarshalText([]byte("warning")))
	assert.Equal(t, WarningLogSeverity, s)
	assert.Error(t, s.UnmarshalText([]byte("SHOUT")))
}

func TestLogFormatUnmarshalText(t *testing.T) {
	var f LogFormat
	assert.NoError(t, f.UnmarshalText([]byte("JSON")))
	assert.Equal(t, LogFormatJSON, f)
	assert.Error(t, f.UnmarshalText([]byte("xml")))
}

func TestResolvedPathIsAbsolute(t *testing.T) {
	var p ResolvedPath
	assert.NoError(t, p.UnmarshalText([]byte("relative/data")))
	assert.True(t, len(p) > 0 && p[0] == '/')
}

func TestResolvedPathEmptyStaysEmpty(t *testing.T) {
	var p ResolvedPath
	assert.NoError(t, p.UnmarshalText([]byte("")))
	assert.Equal(t, ResolvedPath(""), p)
}
