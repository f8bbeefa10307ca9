package config

import "errors"

// Configuration validation errors returned by Config.Validate and the loaders.
var (
	// ErrConfigNotFound is returned when an explicitly named file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrUnsupportedFormat is returned for a config file that is neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("unsupported configuration format: use .yaml, .yml or .toml")

	// ErrInvalidDriver is returned for a database driver other than sqlite or postgres.
	ErrInvalidDriver = errors.New("invalid database driver: must be sqlite or postgres")

	// ErrMissingDSN is returned when the postgres driver has no connection string.
	ErrMissingDSN = errors.New("database.dsn is required for the postgres driver")

	// ErrMissingDBPath is returned when the sqlite driver has no file path.
	ErrMissingDBPath = errors.New("database.path is required for the sqlite driver")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrInvalidMaxDepth is returned when the default max depth is not positive.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be positive")

	// ErrInvalidClaimRetry is returned when claim attempts or backoff are not positive.
	ErrInvalidClaimRetry = errors.New("invalid claim retry: attempts and backoff must be positive")

	// ErrInvalidClaimLease is returned when the claim lease is not positive.
	ErrInvalidClaimLease = errors.New("invalid claim lease: must be positive")

	// ErrInvalidMaxTextLength is returned for a negative anchor text limit.
	ErrInvalidMaxTextLength = errors.New("invalid max text length: must be 0 (no limit) or positive")

	// ErrInvalidTimeout is returned when a browser timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidExtraction is returned for negative extraction tuning values.
	ErrInvalidExtraction = errors.New("invalid extraction setting: must be non-negative")

	// ErrInvalidPattern is returned when the page token pattern does not compile.
	ErrInvalidPattern = errors.New("invalid page token pattern")

	// ErrInvalidLogFormat is returned for a log format other than text or json.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrInvalidLogLevel is returned for an unknown log level.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn or error")

	// ErrInvalidSeed is returned for a seed without a usable domain or with a
	// non-positive depth.
	ErrInvalidSeed = errors.New("invalid seed")

	// ErrNoSeeds is returned when seeding was requested but nothing was given.
	ErrNoSeeds = errors.New("no seeds specified: use the config file, --seeds or arguments")
)
