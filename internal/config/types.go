package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// SizeBytes a number of bytes, parsed from human-friendly strings like "5KiB"
// or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	return s.Set(node.Value)
}

// Set implements flag.Value
func (s *SizeBytes) Set(value string) error {
	raw := strings.TrimSpace(value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", value)
}

func (s SizeBytes) String() string {
	if s < 0 {
		return strconv.FormatInt(int64(s), 10)
	}
	return humanize.IBytes(uint64(s))
}

func (s SizeBytes) Int() int { return int(s) }

// Duration a time.Duration parsed from strings like "100ms" or plain numbers
// of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	return d.Set(node.Value)
}

// Set implements flag.Value
func (d *Duration) Set(value string) error {
	raw := strings.TrimSpace(value)
	if raw == "" {
		*d = 0
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", value)
}

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) Duration() time.Duration { return time.Duration(d) }
