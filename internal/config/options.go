package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ApplyMountOptions applies a FUSE-style option string such as
// "src=/music,src_ext=flac,dst_ext=mp3,ncache=20,pipeline=...".
// A backslash escapes the next character, so "\," keeps a comma inside a
// value (gstreamer caps use commas). Unknown keys are returned so the
// caller can pass them on to the mount.
func (c *Config) ApplyMountOptions(opts string) ([]string, error) {
	var unknown []string
	for _, opt := range splitOptions(opts) {
		if opt == "" {
			continue
		}
		key, value, hasValue := strings.Cut(opt, "=")

		switch key {
		case "src":
			c.Mount.SourceDir = value
		case "src_ext":
			c.Mount.SourceExt = value
		case "dst_ext":
			c.Mount.TargetExt = value
		case "pipeline":
			c.Mount.Pipeline = value
		case "ncache":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid ncache %q: %w", value, err)
			}
			c.Cache.MaxEntries = n
		case "engine":
			c.Transcoder.Engine = value
		case "allow_other":
			c.Mount.AllowOther = true
		case "debug":
			c.Mount.Debug = true
		default:
			if !hasValue {
				unknown = append(unknown, key)
			} else {
				unknown = append(unknown, key+"="+value)
			}
		}
	}
	return unknown, nil
}

// splitOptions splits on unescaped commas and removes escape backslashes.
func splitOptions(s string) []string {
	var (
		parts   []string
		cur     strings.Builder
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	return parts
}
