// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/glmchat-tui/internal/config"
)

// RunConfigShow prints the effective configuration, environment overrides
// included.
func RunConfigShow(cfg *config.Config, path string, out io.Writer) error {
	fmt.Fprintln(out, DimStyle.Render("# "+path))
	fmt.Fprintln(out, cfg.String())
	return nil
}

// RunConfigInit writes the default configuration to path. An existing file
// is kept unless force is set.
func RunConfigInit(path string, force bool, out io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		return &UsageError{Message: "config file already exists: " + path, Usage: "glmchat config init --force"}
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := config.SaveTOML(config.Default(), path); err != nil {
		return err
	}
	fmt.Fprintln(out, SuccessStyle.Render("wrote "+path))
	return nil
}

// RunConfigGet prints one setting.
func RunConfigGet(cfg *config.Config, key string, out io.Writer) error {
	value, err := cfg.Get(key)
	if err != nil {
		return &UsageError{Message: err.Error(), Usage: "glmchat config get <section.key>"}
	}
	fmt.Fprintln(out, value)
	return nil
}

// RunConfigSet changes one setting in the file at path. Environment
// overrides are not written back.
func RunConfigSet(path, key, value string, out io.Writer) error {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	}
	if err := cfg.Set(key, value); err != nil {
		return &UsageError{Message: err.Error(), Usage: "glmchat config set <section.key> <value>"}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s = %s\n", key, value)
	return nil
}

// RunConfigKeys lists every settable key.
func RunConfigKeys(out io.Writer) error {
	for _, k := range config.Keys() {
		fmt.Fprintln(out, k)
	}
	return nil
}
