// Package config loads the daemon's static configuration: the shell-style
// /etc/ecs/ecs.config file and the CF_* environment variable overrides.
package config

import (
	"os"
	"time"
)

// Env var names, exact per the external interface contract.
const (
	EnvDomainController = "CF_DOMAIN_CONTROLLER"
	EnvGMSAOU            = "CF_GMSA_OU"
	EnvGMSABaseDN        = "CF_GMSA_BASE_DN"
	EnvGMSASecretName    = "CF_GMSA_SECRET_NAME"
	EnvDecoderPath       = "CF_DECODER_PATH"
	EnvKeytabPath        = "CF_KEYTAB_PATH"
	EnvNameserver        = "CF_NAMESERVER"
)

// DefaultConfigPath is the well-known location of the shell-style config.
const DefaultConfigPath = "/etc/ecs/ecs.config"

// DefaultGMSAOU is used when neither CF_GMSA_OU nor CF_GMSA_BASE_DN is set.
const DefaultGMSAOU = "CN=Managed Service Accounts"

// DefaultDecoderPath is the conventional install location of the UTF-16
// password decoder this package shells out to.
const DefaultDecoderPath = "/opt/credentials-fetcher/bin/decode_utf16"

// DefaultNameserver is used when the host's system resolver configuration
// isn't consulted directly; CF_NAMESERVER overrides it.
const DefaultNameserver = "127.0.0.1:53"

// Timeouts holds the per-subprocess budgets from §5.
type Timeouts struct {
	LDAPSearch time.Duration
	Kinit      time.Duration
	Klist      time.Duration
	Kdestroy   time.Duration
}

// Config is the daemon's fully resolved configuration.
type Config struct {
	KrbRoot                  string
	DomainControllerOverride string
	GMSAOU                   string
	GMSABaseDN               string
	GMSASecretName           string
	DecoderPath              string
	KeytabPath               string
	Nameserver               string

	RenewTickInterval     time.Duration
	RenewWindow           time.Duration
	MaxConcurrentRenewals int

	Timeouts Timeouts
}

// Default returns the daemon's out-of-the-box configuration.
func Default() Config {
	return Config{
		KrbRoot:               "/var/credentials_fetcher/krb_dir",
		GMSAOU:                DefaultGMSAOU,
		DecoderPath:           DefaultDecoderPath,
		Nameserver:            DefaultNameserver,
		RenewTickInterval:     10 * time.Minute,
		RenewWindow:           1 * time.Hour,
		MaxConcurrentRenewals: 4,
		Timeouts: Timeouts{
			LDAPSearch: 30 * time.Second,
			Kinit:      15 * time.Second,
			Klist:      5 * time.Second,
			Kdestroy:   5 * time.Second,
		},
	}
}

// Load reads configPath (if it exists) and merges CF_* environment
// variables over it, environment winning. A missing config file is not an
// error; a malformed KEY=VALUE line in a present file is.
func Load(configPath string) (Config, error) {
	cfg := Default()

	fileVals, err := loadConfigFile(configPath)
	if err != nil {
		return Config{}, err
	}

	cfg.DomainControllerOverride = firstNonEmpty(os.Getenv(EnvDomainController), fileVals[EnvDomainController])
	cfg.GMSABaseDN = firstNonEmpty(os.Getenv(EnvGMSABaseDN), fileVals[EnvGMSABaseDN])
	cfg.GMSASecretName = firstNonEmpty(os.Getenv(EnvGMSASecretName), fileVals[EnvGMSASecretName])

	if ou := firstNonEmpty(os.Getenv(EnvGMSAOU), fileVals[EnvGMSAOU]); ou != "" {
		cfg.GMSAOU = ou
	}
	if dp := firstNonEmpty(os.Getenv(EnvDecoderPath), fileVals[EnvDecoderPath]); dp != "" {
		cfg.DecoderPath = dp
	}
	if kp := firstNonEmpty(os.Getenv(EnvKeytabPath), fileVals[EnvKeytabPath]); kp != "" {
		cfg.KeytabPath = kp
	}
	if ns := firstNonEmpty(os.Getenv(EnvNameserver), fileVals[EnvNameserver]); ns != "" {
		cfg.Nameserver = ns
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
