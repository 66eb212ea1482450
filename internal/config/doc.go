// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and saves the glmchat configuration.
//
// # Configuration Precedence
//
// Settings are resolved in this order, later entries winning:
//   - Built-in defaults
//   - $GLMCHAT_HOME/config.toml, or ~/.glmchat/config.toml
//   - Environment variables (GLMCHAT_*)
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client := glm.NewClient(cfg.API.BaseURL).WithTimeout(cfg.API.Timeout.Duration)
//
// Watcher reports edits to the file so a running client can pick them up.
package config
