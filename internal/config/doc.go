// Package config provides configuration structures and utilities for
// dizicrawl. It defines the crawl options, the per-site YAML file format
// and the built-in presets of each catalog kind.
package config
