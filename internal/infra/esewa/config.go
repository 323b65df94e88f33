package esewa

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Environment selects the gateway endpoints.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvSandbox    Environment = "sandbox"
	EnvAuto       Environment = "auto"
)

// Public test credentials published by the gateway; never valid in production.
const (
	SandboxProductCode = "EPAYTEST"
	SandboxSecretKey   = "8gBm/:&EnhH.1/q"
)

const (
	sandboxFormURL      = "https://rc-epay.esewa.com.np/api/epay/main/v2/form"
	productionFormURL   = "https://epay.esewa.com.np/api/epay/main/v2/form"
	sandboxStatusURL    = "https://rc.esewa.com.np/api/epay/transaction/status/"
	productionStatusURL = "https://epay.esewa.com.np/api/epay/transaction/status/"

	defaultStatusTimeout = 5 * time.Second

	// Paths served by this service and registered with the gateway as redirect targets.
	VerifyPath  = "/api/payments/esewa/verify"
	FailurePath = "/api/payments/esewa/failure"
)

// Config is the validated gateway configuration. It is built once at startup
// and passed to the components that need it.
type Config struct {
	ProductCode   string
	SecretKey     string
	Environment   Environment // resolved; never EnvAuto
	AppBaseURL    *url.URL
	FormURL       string
	StatusURL     string
	StatusTimeout time.Duration
}

// NewConfig validates raw settings and resolves the environment.
// In auto mode the public test product code selects the sandbox.
func NewConfig(productCode, secretKey, env, appBaseURL string, statusTimeout time.Duration) (Config, error) {
	productCode = strings.TrimSpace(productCode)
	secretKey = strings.TrimSpace(secretKey)
	if productCode == "" {
		return Config{}, errors.New("esewa: product code is required")
	}
	if secretKey == "" {
		return Config{}, errors.New("esewa: secret key is required")
	}

	mode := Environment(strings.ToLower(strings.TrimSpace(env)))
	switch mode {
	case "", EnvAuto:
		mode = EnvProduction
		if productCode == SandboxProductCode {
			mode = EnvSandbox
		}
	case EnvProduction, EnvSandbox:
	default:
		return Config{}, fmt.Errorf("esewa: unknown environment %q", env)
	}

	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(appBaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return Config{}, errors.New("esewa: app base url must be an absolute url")
	}

	cfg := Config{
		ProductCode:   productCode,
		SecretKey:     secretKey,
		Environment:   mode,
		AppBaseURL:    base,
		FormURL:       sandboxFormURL,
		StatusURL:     sandboxStatusURL,
		StatusTimeout: statusTimeout,
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = defaultStatusTimeout
	}

	if mode == EnvProduction {
		if productCode == SandboxProductCode || secretKey == SandboxSecretKey {
			return Config{}, errors.New("esewa: sandbox credentials cannot be used in production")
		}
		if base.Scheme != "https" {
			return Config{}, errors.New("esewa: app base url must use https in production")
		}
		cfg.FormURL = productionFormURL
		cfg.StatusURL = productionStatusURL
	}
	return cfg, nil
}

// SuccessURL is where the gateway redirects after a completed payment.
func (c Config) SuccessURL() string { return c.AppURL(VerifyPath, nil) }

// FailureURL is where the gateway redirects after a declined or abandoned payment.
func (c Config) FailureURL() string { return c.AppURL(FailurePath, nil) }

// AppURL builds an absolute URL inside the application from server configuration.
func (c Config) AppURL(path string, query url.Values) string {
	u := *c.AppBaseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}
