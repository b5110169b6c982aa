package main

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/steelcutops/railtube/logger"
	"github.com/steelcutops/railtube/railtube/fetch"
	"gopkg.in/ini.v1"
)

// settings are read from an ini file. Every key is optional.
//
//	[log]
//	file  = railtube.log
//	level = info
//
//	[sudo]
//	enabled = true
//	prompt  = false
//
//	[http]
//	timeout = 5m
type settings struct {
	LogFile     string
	LogLevel    string
	Sudo        bool
	SudoPrompt  bool
	HTTPTimeout time.Duration
}

func defaultSettings() settings {
	return settings{
		LogFile:     logger.DefaultFile,
		LogLevel:    "info",
		Sudo:        true,
		HTTPTimeout: fetch.DefaultTimeout,
	}
}

// defaultConfigPath is $XDG_CONFIG_HOME/railtube/config.ini, falling back to
// ~/.config.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "railtube", "config.ini")
}

// readSettings loads path over the defaults. A missing file is not an error
// unless it was named explicitly.
func readSettings(path string, explicit bool) (settings, error) {
	s := defaultSettings()
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		return s, nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return s, err
	}

	logSection := cfg.Section("log")
	s.LogFile = logSection.Key("file").MustString(s.LogFile)
	s.LogLevel = logSection.Key("level").MustString(s.LogLevel)

	sudoSection := cfg.Section("sudo")
	s.Sudo = sudoSection.Key("enabled").MustBool(s.Sudo)
	s.SudoPrompt = sudoSection.Key("prompt").MustBool(s.SudoPrompt)

	s.HTTPTimeout = cfg.Section("http").Key("timeout").MustDuration(s.HTTPTimeout)
	return s, nil
}
