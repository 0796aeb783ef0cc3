package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | prod
		Env      string `yaml:"app_env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr         string        `yaml:"addr"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Storage struct {
		// postgres | memory
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		MaxConns int    `yaml:"max_conns"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Session struct {
		CookieName string        `yaml:"cookie_name"`
		Domain     string        `yaml:"domain"`
		SameSite   string        `yaml:"samesite"`
		Secure     bool          `yaml:"secure"`
		TTL        time.Duration `yaml:"ttl"`
	} `yaml:"session"`

	Rate struct {
		Enabled     bool          `yaml:"enabled"`
		Window      time.Duration `yaml:"window"`
		MaxRequests int           `yaml:"max_requests"`
	} `yaml:"rate"`

	// Proveedor Office 365 / Microsoft identity platform.
	O365 O365 `yaml:"o365"`
}

// O365 agrupa credenciales (normalmente desde env) y la configuración estática del paquete.
type O365 struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`

	// SecretKey abre ClientSecret cuando viene sellado ("enc:..."). Ver secretbox.
	SecretKey string `yaml:"secret_key"`

	BaseURL       string   `yaml:"base_url"`
	AuthorizePath string   `yaml:"authorize_path"`
	TokenPath     string   `yaml:"token_path"`
	Scopes        []string `yaml:"scopes"`
	UserInfoURL   string   `yaml:"userinfo_url"`

	// AuthorizedDomains: "contoso.com", "a.com,b.com" o "*". Vacío niega todo.
	AuthorizedDomains string `yaml:"authorized_domains"`
	AllowAnyDomain    bool   `yaml:"allow_any_domain"`

	// UserTable es la tabla donde se provisionan los usuarios locales.
	UserTable string `yaml:"user_table"`

	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// RoutePrefix es el base path de /init y /redirect.
	RoutePrefix string `yaml:"route_prefix"`

	// ErrorView: json | html
	ErrorView string `yaml:"error_view"`
}

const (
	DefaultBaseURL       = "https://login.microsoftonline.com/common"
	DefaultAuthorizePath = "/oauth2/v2.0/authorize"
	DefaultTokenPath     = "/oauth2/v2.0/token"
	DefaultUserInfoURL   = "https://graph.microsoft.com/v1.0/me"
	DefaultUserTable     = "app_user"
	DefaultRoutePrefix   = "/o365auth"
	DefaultHTTPTimeout   = 15 * time.Second
)

// DefaultScopes son los scopes pedidos si la configuración no dice otra cosa.
var DefaultScopes = []string{"profile", "openid", "User.Read", "Group.Read.All"}

// Load lee el YAML (si existe), aplica defaults y luego overrides de entorno.
// Un path vacío o inexistente no es error: se usa solo el entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFromEnv arma la configuración solo desde variables de entorno.
func LoadFromEnv() (*Config, error) { return Load("") }

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "o365auth"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "sid"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 12 * time.Hour
	}
	if c.Rate.Window == 0 {
		c.Rate.Window = time.Minute
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 30
	}

	o := &c.O365
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.AuthorizePath == "" {
		o.AuthorizePath = DefaultAuthorizePath
	}
	if o.TokenPath == "" {
		o.TokenPath = DefaultTokenPath
	}
	if len(o.Scopes) == 0 {
		o.Scopes = append([]string(nil), DefaultScopes...)
	}
	if o.UserInfoURL == "" {
		o.UserInfoURL = DefaultUserInfoURL
	}
	if o.UserTable == "" {
		o.UserTable = DefaultUserTable
	}
	if o.HTTPTimeout == 0 {
		o.HTTPTimeout = DefaultHTTPTimeout
	}
	if o.RoutePrefix == "" {
		o.RoutePrefix = DefaultRoutePrefix
	}
	if o.ErrorView == "" {
		o.ErrorView = "json"
	}
}

// Validate chequea lo que puede romper en runtime sin que nadie lo note.
// Las credenciales faltantes NO son error acá: se reportan en Resolve, al primer uso.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("config: storage.dsn required for postgres")
	}
	switch c.Cache.Kind {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown cache kind %q", c.Cache.Kind)
	}
	if c.Cache.Kind == "redis" && strings.TrimSpace(c.Cache.Redis.Addr) == "" {
		return fmt.Errorf("config: cache.redis.addr required for redis")
	}
	if strings.EqualFold(c.Session.SameSite, "none") && !c.Session.Secure {
		return fmt.Errorf("config: session.samesite=None requires session.secure=true")
	}
	if _, err := url.ParseRequestURI(c.O365.BaseURL + c.O365.AuthorizePath); err != nil {
		return fmt.Errorf("config: invalid o365 authorize url: %w", err)
	}
	if _, err := url.ParseRequestURI(c.O365.UserInfoURL); err != nil {
		return fmt.Errorf("config: invalid o365 userinfo url: %w", err)
	}
	if !strings.HasPrefix(c.O365.RoutePrefix, "/") {
		return fmt.Errorf("config: o365.route_prefix must start with /")
	}
	switch c.O365.ErrorView {
	case "json", "html":
	default:
		return fmt.Errorf("config: unknown o365.error_view %q", c.O365.ErrorView)
	}
	return nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// getEnvFields separa por espacios o comas ("profile openid" o "profile,openid").
func getEnvFields(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		out := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
		return out, len(out) > 0
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}

	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("STORAGE_MAX_CONNS"); ok {
		c.Storage.MaxConns = v
	}

	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	if v, ok := getEnvStr("SESSION_COOKIE_NAME"); ok {
		c.Session.CookieName = v
	}
	if v, ok := getEnvStr("SESSION_DOMAIN"); ok {
		c.Session.Domain = v
	}
	if v, ok := getEnvStr("SESSION_SAMESITE"); ok {
		c.Session.SameSite = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvDur("SESSION_TTL"); ok {
		c.Session.TTL = v
	}

	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvDur("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}

	o := &c.O365
	if v, ok := getEnvStr("O365_CLIENT_ID"); ok {
		o.ClientID = v
	}
	if v, ok := getEnvStr("O365_CLIENT_SECRET"); ok {
		o.ClientSecret = v
	}
	if v, ok := getEnvStr("O365_SECRET_KEY"); ok {
		o.SecretKey = v
	}
	if v, ok := getEnvStr("O365_REDIRECT_URL"); ok {
		o.RedirectURL = v
	}
	// O365_DOMAIN es el nombre histórico; O365_AUTHORIZED_DOMAINS gana si están ambos.
	if v, ok := getEnvStr("O365_DOMAIN"); ok {
		o.AuthorizedDomains = v
	}
	if v, ok := getEnvStr("O365_AUTHORIZED_DOMAINS"); ok {
		o.AuthorizedDomains = v
	}
	if v, ok := getEnvBool("O365_ALLOW_ANY_DOMAIN"); ok {
		o.AllowAnyDomain = v
	}
	if v, ok := getEnvStr("O365_BASE_URL"); ok {
		o.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := getEnvStr("O365_AUTHORIZE_PATH"); ok {
		o.AuthorizePath = v
	}
	if v, ok := getEnvStr("O365_TOKEN_PATH"); ok {
		o.TokenPath = v
	}
	if v, ok := getEnvFields("O365_SCOPES"); ok {
		o.Scopes = v
	}
	if v, ok := getEnvStr("O365_USERINFO_URL"); ok {
		o.UserInfoURL = v
	}
	if v, ok := getEnvStr("O365_USER_TABLE"); ok {
		o.UserTable = v
	}
	if v, ok := getEnvDur("O365_HTTP_TIMEOUT"); ok {
		o.HTTPTimeout = v
	}
	if v, ok := getEnvStr("O365_ROUTE_PREFIX"); ok {
		o.RoutePrefix = "/" + strings.Trim(v, "/")
	}
	if v, ok := getEnvStr("O365_ERROR_VIEW"); ok {
		o.ErrorView = strings.ToLower(v)
	}
}
