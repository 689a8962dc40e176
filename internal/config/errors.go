package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig and ErrLoadConfig are the two kinds callers branch on;
// the narrower sentinels below wrap one of them so errors.Is matches both.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

var (
	// ErrConfigFile: the YAML named by --config or TUTORMARKET_CONFIG could
	// not be read or parsed.
	ErrConfigFile = fmt.Errorf("%w: config file", ErrLoadConfig)
	// ErrConfigEnv: TUTORMARKET_* variables could not be loaded.
	ErrConfigEnv = fmt.Errorf("%w: environment", ErrLoadConfig)
	// ErrConfigDecode: merged values did not fit the Config struct.
	ErrConfigDecode = fmt.Errorf("%w: decode", ErrLoadConfig)
	// ErrUnknownDriver: db_driver is neither postgres nor sqlite.
	ErrUnknownDriver = fmt.Errorf("%w: unknown db_driver", ErrInvalidConfig)
)
