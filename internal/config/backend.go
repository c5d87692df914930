package config

// ConfigBackend is where persisted settings live: UserDefaults on macOS,
// a JSON file everywhere else. Float keys are stored as strings.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
