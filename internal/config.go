package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Web      WebConfig         `yaml:"web"`
	Backend  BackendConfig     `yaml:"backend"`
	Client   ClientConfig      `yaml:"client"`
	Importer ImporterConfig    `yaml:"importer"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Web.Validate(); err != nil {
		return fmt.Errorf("web: %w", err)
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	return c.Importer.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile switches logging to a rotated file when set.
	LogFile string     `yaml:"log_file"`
	HTTP    HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WebConfig configures the public site and admin front-end.
type WebConfig struct {
	BackendURL     string        `yaml:"backend_url"`
	SessionDB      string        `yaml:"session_db"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	SecureCookies  bool          `yaml:"secure_cookies"`
	LoginRate      int           `yaml:"login_rate"`
	FeaturedLimit  int           `yaml:"featured_limit"`
	// SessionMaxAge is how long an idle browser namespace is kept.
	SessionMaxAge time.Duration `yaml:"session_max_age"`
}

// Validate validates the web configuration.
func (c *WebConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BackendURL, validation.Required, is.URL),
		validation.Field(&c.SessionDB, validation.Required),
		validation.Field(&c.RequestTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.LoginRate, validation.Min(0)),
		validation.Field(&c.FeaturedLimit, validation.Min(0), validation.Max(20)),
		validation.Field(&c.SessionMaxAge, validation.Required, validation.Min(time.Hour)),
	)
}

// BackendConfig configures the reference backend.
type BackendConfig struct {
	// Embedded starts the backend inside `serve`.
	Embedded   bool          `yaml:"embedded"`
	HTTP       HTTPConfig    `yaml:"http"`
	SQLitePath string        `yaml:"sqlite_path"`
	UploadsDir string        `yaml:"uploads_dir"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	LoginRate  int           `yaml:"login_rate"`
	Admin      AdminConfig   `yaml:"admin"`
}

// Validate validates the backend configuration.
func (c *BackendConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.SQLitePath, validation.Required),
		validation.Field(&c.UploadsDir, validation.Required),
		validation.Field(&c.TokenTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.LoginRate, validation.Min(0)),
	)
}

// AdminConfig seeds the backend's admin account. An empty username skips
// seeding.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
}

// Validate validates the admin seed.
func (c *AdminConfig) Validate() error {
	if c.Username == "" {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&c.Email, is.EmailFormat),
	)
}

// ClientConfig configures the command-line session.
type ClientConfig struct {
	BackendURL  string `yaml:"backend_url"`
	SessionFile string `yaml:"session_file"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BackendURL, validation.Required, is.URL),
		validation.Field(&c.SessionFile, validation.Required),
	)
}

// ImporterConfig configures the Markdown importer.
type ImporterConfig struct {
	Dir       string        `yaml:"dir"`
	StateFile string        `yaml:"state_file"`
	Prune     bool          `yaml:"prune"`
	Watch     bool          `yaml:"watch"`
	Debounce  time.Duration `yaml:"debounce"`
}

// Validate validates the importer configuration.
func (c *ImporterConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.When(c.Watch, validation.Required)),
		validation.Field(&c.StateFile, validation.Required),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Web: WebConfig{
			BackendURL:     "http://localhost:8081/api",
			SessionDB:      "./data/sessions.db",
			RequestTimeout: 15 * time.Second,
			LoginRate:      10,
			FeaturedLimit:  3,
			SessionMaxAge:  30 * 24 * time.Hour,
		},
		Backend: BackendConfig{
			HTTP: HTTPConfig{
				Port: 8081,
			},
			SQLitePath: "./data/brightline.db",
			UploadsDir: "./data/uploads",
			TokenTTL:   24 * time.Hour,
			LoginRate:  20,
		},
		Client: ClientConfig{
			BackendURL:  "http://localhost:8081/api",
			SessionFile: "./data/cli-session.json",
		},
		Importer: ImporterConfig{
			Dir:       "./content",
			StateFile: "./data/import-state.json",
			Debounce:  300 * time.Millisecond,
		},
	}
}
