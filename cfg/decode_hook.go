package cfg

import (
	"github.com/mitchellh/mapstructure"
)

// DecodeHook composes the hook funcs viper needs to fill a Config: the
// UnmarshalText-based hook handles Octal/Engine/LogSeverity/LogFormat/
// ResolvedPath (each defined in types.go), layered under mapstructure's
// own default hooks for durations and comma-separated slices, exactly the
// way gcsfuse's own cfg.DecodeHook is composed.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
