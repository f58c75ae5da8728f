package config

// ConfigBackend abstracts platform-specific storage for adops settings.
// macOS keeps them in the com.castora.adops defaults domain (via the
// `defaults` CLI); other platforms use a JSON file under XDG config.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
