// Package config loads and validates depthcrawl settings.
//
// Settings come from NewConfig defaults, overlaid by an optional YAML or
// TOML file, overlaid by command-line flags. Seeds are collected from the
// file's seeds list, a seeds text file and positional arguments.
package config
