package config

import (
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	configFileENV     = "CONFIG_FILE"
	defaultConfigFile = "/config/shelfwatch.yaml"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" validate:"required"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5" validate:"min=0"`
	ServerHost                string        `koanf:"server_host" default:"0.0.0.0"`
	ServerPort                int           `koanf:"server_port" default:"3689" validate:"min=0,max=65535"`

	// DeleteDebounce is the quiet window a DELETE must survive before it is processed. A CREATE
	// for the same path inside the window cancels it.
	DeleteDebounce time.Duration `koanf:"delete_debounce" default:"2s" validate:"gt=0"`
	// FolderDebounce is the quiet window for newly created directories. It is longer than
	// DeleteDebounce so bulk copies settle before the folder is analyzed.
	FolderDebounce  time.Duration `koanf:"folder_debounce" default:"10s" validate:"gtfield=DeleteDebounce"`
	MatchThreshold  float64       `koanf:"match_threshold" default:"0.85" validate:"gt=0,lte=1"`
	EventQueueSize  int           `koanf:"event_queue_size" default:"1024" validate:"min=1"`
	JobPollInterval time.Duration `koanf:"job_poll_interval" default:"5s" validate:"gt=0"`
	WatchEnabled    bool          `koanf:"watch_enabled" default:"true"`
}

// New builds the config from defaults, then the yaml file named by CONFIG_FILE, then environment
// variables. Later sources win.
func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
	}

	known := knownKeys()
	err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := known[key]; !ok {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewForTest returns a config suitable for tests: an in-memory database and short debounce
// windows.
func NewForTest() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.DatabaseFilePath = ":memory:"
	cfg.ServerHost = "127.0.0.1"
	cfg.DeleteDebounce = 50 * time.Millisecond
	cfg.FolderDebounce = 150 * time.Millisecond
	cfg.JobPollInterval = 50 * time.Millisecond
	cfg.WatchEnabled = false
	return cfg
}

func validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.WithStack(err)
	}
	fe := verrs[0]
	key := toSnakeCase(fe.StructField())
	if fe.Tag() == "required" {
		return errors.Errorf("missing required config: set %s or %s", strings.ToUpper(key), key)
	}
	return errors.Errorf("invalid config %s: failed %q validation", key, fe.Tag())
}

func knownKeys() map[string]struct{} {
	keys := map[string]struct{}{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("koanf")
		if key == "" {
			key = toSnakeCase(t.Field(i).Name)
		}
		keys[key] = struct{}{}
	}
	return keys
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
