package bitwatch

// Context constants for prior snapshot index entries
const (
	PriorContext = "prior" // Entry loaded from the repository, not yet seen on disk
	FoundContext = "found" // Entry confirmed present on disk during this run
)

// Path constants
const (
	RootRelativePath = "." // Relative path of a root's own node
	PathSeparator    = "/" // Separator used in every persisted relative path
	AggregateJoiner  = ";" // Joins "name:hash" pairs when hashing a directory
	AggregatePairSep = ":" // Separates a child name from its hash
)

// Setting keys stored in the repository
const (
	SettingDefaultHashAlgorithm = "default_hash_algorithm"
	SettingAutoRunInterval      = "auto_run_interval_minutes"
	SettingExcludedDisplayColor = "excluded_display_color"
)

// Built-in setting defaults
const (
	DefaultHashAlgorithm        = SHA256
	DefaultAutoRunIntervalMins  = 60
	DefaultExcludedDisplayColor = "Gray"
	DefaultHashBuffer           = "2M"
	DefaultEventBuffer          = 64
)

// Symlink handling modes
const (
	SymlinkModeNone = "none" // Skip symlinked directories, hash symlinked files' targets
	SymlinkModeAll  = "all"  // Follow every symlink
)

// Hash size constants
const (
	HashSizeMD5    = 16 // MD5 hash size in bytes
	HashSizeSHA1   = 20 // SHA-1 hash size in bytes
	HashSizeSHA256 = 32 // SHA-256 hash size in bytes
	HashSizeSHA512 = 64 // SHA-512 hash size in bytes
)
