// Package configs provides embedded configuration templates for chatsearch.
//
// Templates are embedded at build time so `chatsearch config init` works
// from binary releases as well as source builds.
//
// Configuration hierarchy (see internal/config Load):
//  1. Defaults (config.NewConfig)
//  2. User config (~/.config/chatsearch/config.yaml)
//  3. ./chatsearch.yaml or --config
//  4. Environment variables (CHATSEARCH_*)
package configs

import _ "embed"

// ConfigTemplate is written by `chatsearch config init`. Every option is
// present with its default value, commented where it is optional.
//
//go:embed chatsearch.example.yaml
var ConfigTemplate string
