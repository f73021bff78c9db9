package main

import (
	"strings"
	"sync"

	"rewind/internal/api"
	"rewind/internal/config"
	"rewind/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withService opens the session store read side for the duration of fn.
// The store is opened directly; WAL mode keeps this safe alongside a
// running daemon.
func (c *commandContext) withService(fn func(*api.SessionService) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(api.NewSessionService(st))
}

func (c *commandContext) storeURL() string {
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return ""
	}
	return cfg.Store.URL
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
