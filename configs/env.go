package configs

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	sharedenv "github.com/trackvision/tv-shared-go/env"
)

// Env holds the service configuration: the credential record plus settings
// for the HTTP service that serves it.
type Env struct {
	Config

	Port string `env:"PORT" envDefault:"8080"`

	// ConfigFile is the runtime dotenv file holding the credential record
	ConfigFile  string `env:"CONFIG_FILE" envDefault:"config.env"`
	WatchConfig bool   `env:"WATCH_CONFIG" envDefault:"true"`

	// Cloud Logging, used for check history
	GCPProjectID string `env:"GCP_PROJECT_ID"`
	ServiceName  string `env:"SERVICE_NAME" envDefault:"alphadip-config"`

	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	CheckRateLimit int           `env:"CHECK_RATE_LIMIT" envDefault:"10"`
}

// Load reads the optional runtime file named by CONFIG_FILE and then the
// process environment, which wins on conflicts. It does not validate.
func Load() (*Env, error) {
	environ := environMap()

	file := environ["CONFIG_FILE"]
	if file == "" {
		file = RuntimeFileName
	}
	fileVars, err := godotenv.Read(file)
	switch {
	case err == nil:
		for k, v := range fileVars {
			if _, set := environ[k]; !set {
				environ[k] = v
			}
		}
	case errors.Is(err, os.ErrNotExist):
		// environment only
	default:
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	cfg := &Env{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	// Cloud Run mounts secrets at /<NAME>/value
	if cfg.GoogleAPIKey == "" {
		if secret, err := sharedenv.GetSecret(KeyGoogleAPIKey); err == nil {
			cfg.GoogleAPIKey = strings.TrimSpace(secret)
		}
	}

	return cfg, nil
}

// LoadFile parses the credential record from a dotenv file. Unknown keys are ignored.
func LoadFile(path string) (Config, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	return fromMap(vars), nil
}

func fromMap(vars map[string]string) Config {
	return Config{
		GoogleAPIKey:   vars[KeyGoogleAPIKey],
		GoogleSheetsID: vars[KeyGoogleSheetsID],
		AppsScriptURL:  vars[KeyAppsScriptURL],
	}
}

func environMap() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			vars[k] = v
		}
	}
	return vars
}
