package configuration

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"github.com/zvonler/threadgrab/batch"
	"github.com/zvonler/threadgrab/browser"
	"github.com/zvonler/threadgrab/database"
	"github.com/zvonler/threadgrab/fetch"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/scraper"
	"github.com/zvonler/threadgrab/selector"
	"github.com/zvonler/threadgrab/session"
	"github.com/zvonler/threadgrab/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the merged view of flags, config file and environment.
type Config struct {
	Selectors    string
	Verbose      bool
	Retries      int
	BaseDelay    time.Duration
	Timeout      time.Duration
	UserAgent    string
	Cloudflare   bool
	Cookies      string
	GroupCookies map[string]string
	Delay        time.Duration
	PageDelay    time.Duration
	Database     string
	Separator    string
	GroupPattern string

	Email        string
	Password     string
	CookieStore  string
	CookieMaxAge time.Duration
	WaitTimeout  time.Duration
	LoginTimeout time.Duration
}

func SetDefaults() {
	fetchOpts := fetch.DefaultOptions()
	browserOpts := browser.DefaultOptions()

	viper.SetDefault("retries", fetchOpts.Retries)
	viper.SetDefault("base-delay", fetchOpts.BaseDelay)
	viper.SetDefault("timeout", fetchOpts.Timeout)
	viper.SetDefault("cloudflare", fetchOpts.Cloudflare)
	viper.SetDefault("user-agent", session.DefaultUserAgent)
	viper.SetDefault("delay", batch.DefaultDelay)
	viper.SetDefault("page-delay", 2*time.Second)
	viper.SetDefault("separator", scraper.DefaultSeparator)
	viper.SetDefault("cookie-store", "cookies/google_cookies.json")
	viper.SetDefault("cookie-max-age", browser.DefaultCookieMaxAge)
	viper.SetDefault("wait-timeout", browserOpts.WaitTimeout)
	viper.SetDefault("login-timeout", browserOpts.LoginTimeout)

	viper.BindEnv("email", "GOOGLE_EMAIL")
	viper.BindEnv("password", "GOOGLE_PASSWORD")
}

// InitConfig reads the config file named by cfgFile, or .threadgrab.yaml
// in the home directory when it exists.
func InitConfig(cfgFile string) error {
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".threadgrab")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("%w: config file: %v", model.ErrInput, err)
	}
	return nil
}

func Load() Config {
	return Config{
		Selectors:    viper.GetString("selectors"),
		Verbose:      viper.GetBool("verbose"),
		Retries:      viper.GetInt("retries"),
		BaseDelay:    viper.GetDuration("base-delay"),
		Timeout:      viper.GetDuration("timeout"),
		UserAgent:    viper.GetString("user-agent"),
		Cloudflare:   viper.GetBool("cloudflare"),
		Cookies:      viper.GetString("cookies"),
		GroupCookies: viper.GetStringMapString("group-cookies"),
		Delay:        seconds("delay"),
		PageDelay:    seconds("page-delay"),
		Database:     viper.GetString("database"),
		Separator:    viper.GetString("separator"),
		GroupPattern: viper.GetString("group-pattern"),
		Email:        viper.GetString("email"),
		Password:     viper.GetString("password"),
		CookieStore:  viper.GetString("cookie-store"),
		CookieMaxAge: viper.GetDuration("cookie-max-age"),
		WaitTimeout:  viper.GetDuration("wait-timeout"),
		LoginTimeout: viper.GetDuration("login-timeout"),
	}
}

// seconds reads a delay given as a bare number of seconds, as in
// "delay: 5", or as a duration with a unit, as in "delay: 1m".
func seconds(key string) time.Duration {
	switch v := viper.Get(key).(type) {
	case time.Duration:
		return v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return utils.Seconds(f)
		}
		return cast.ToDuration(v)
	default:
		return utils.Seconds(cast.ToFloat64(v))
	}
}

// Setup loads the configuration and builds the logger every command uses.
func Setup() (Config, *zap.Logger, error) {
	cfg := Load()
	log, err := NewLogger(cfg.Verbose)
	return cfg, log, err
}

// NewLogger builds the process logger. Verbose enables debug output.
func NewLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = !verbose
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

func (c Config) Resolver(log *zap.Logger) (*selector.Resolver, error) {
	if c.Selectors == "" {
		return selector.NewResolver(nil, log), nil
	}
	set, err := selector.LoadFile(c.Selectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInput, err)
	}
	log.Info("Loaded selectors", zap.String("path", c.Selectors))
	return selector.NewResolver(set, log), nil
}

func (c Config) SessionOptions() session.Options {
	opts := session.DefaultOptions()
	if c.UserAgent != "" {
		opts.UserAgent = c.UserAgent
	}
	return opts
}

func (c Config) FetchOptions() fetch.Options {
	return fetch.Options{
		Retries:    c.Retries,
		BaseDelay:  c.BaseDelay,
		Timeout:    c.Timeout,
		Cloudflare: c.Cloudflare,
	}
}

func (c Config) BatchOptions() (batch.Options, error) {
	opts := batch.Options{
		Separator:    c.Separator,
		Delay:        c.Delay,
		CookieFile:   c.Cookies,
		GroupCookies: c.GroupCookies,
		Session:      c.SessionOptions(),
		Fetch:        c.FetchOptions(),
	}
	if c.GroupPattern != "" {
		pattern, err := regexp.Compile(c.GroupPattern)
		if err != nil {
			return opts, fmt.Errorf("%w: group-pattern: %v", model.ErrInput, err)
		}
		opts.Pattern = pattern
	}
	return opts, nil
}

func (c Config) BrowserOptions(visible bool) browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = !visible
	opts.Email = c.Email
	opts.Password = c.Password
	if c.WaitTimeout > 0 {
		opts.WaitTimeout = c.WaitTimeout
	}
	if c.LoginTimeout > 0 {
		opts.LoginTimeout = c.LoginTimeout
	}
	if c.UserAgent != "" && c.UserAgent != "random" {
		opts.UserAgent = c.UserAgent
	}
	return opts
}

// NewSession builds a session for one run, with the cookie file applied
// when one is configured.
func (c Config) NewSession(targetURL string, log *zap.Logger) (*session.Manager, error) {
	sess, err := session.NewManager(c.SessionOptions(), log)
	if err != nil {
		return nil, err
	}
	if c.Cookies != "" {
		cookies, err := session.LoadCookieFile(c.Cookies, session.CookieDomain(targetURL))
		if err != nil {
			return nil, err
		}
		sess.SetAuth(cookies)
	}
	return sess, nil
}

// NewEngine builds a fetch engine over a fresh session for targetURL.
func (c Config) NewEngine(targetURL string, log *zap.Logger) (*fetch.Engine, *session.Manager, error) {
	sess, err := c.NewSession(targetURL, log)
	if err != nil {
		return nil, nil, err
	}
	engine, err := fetch.NewEngine(sess, c.FetchOptions(), log)
	if err != nil {
		return nil, nil, err
	}
	return engine, sess, nil
}

func OpenExistingDatabase(dbPath string) (sdb *database.ScraperDB, err error) {
	var exists bool
	if exists, err = utils.PathExists(dbPath); err == nil {
		if exists {
			sdb, err = database.OpenScraperDB(dbPath)
		} else {
			err = fmt.Errorf("%w: database %q does not exist", model.ErrInput, dbPath)
		}
	}
	return
}
