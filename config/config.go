// Package config resolves this module's CLI binaries' settings: struct
// defaults, overridden by an optional .ini file, overridden in turn by CLI
// flags and environment variables. The two-layer "file sets a default,
// flags/env win" precedence mirrors the teacher's cmd/cmd.go, which loads
// model/provider defaults and then lets cobra flags (--provider, --model,
// --new-conversation) override them; gopkg.in/ini.v1 stands in for an
// on-disk defaults layer the teacher itself does not have.
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// Options holds every CLI-overridable setting for the cmd/mcp-server binary
// (spec §6's Streamable-HTTP configuration table plus ambient
// logging/transport selection). cmd/mcp-client parses its own flags.
type Options struct {
	// Transport selects how the binary exposes (or reaches) the protocol
	// engine: "stdio", "sse", or "streamable-http".
	Transport string `default:"stdio" help:"transport: stdio, sse, or streamable-http"`

	// ListenAddr is the HTTP bind address for the sse/streamable-http
	// transports.
	ListenAddr string `default:":8080" help:"HTTP listen address for sse/streamable-http transports"`

	// Path is the single mount point the Streamable-HTTP transport serves
	// POST/GET/DELETE on.
	Path string `default:"/mcp" help:"HTTP path the streamable-http transport serves"`

	// ProtocolVersion is read from flags and the config file, but
	// cmd/mcp-server does not pass it to the server: initialize always
	// negotiates against the client's requested version.
	ProtocolVersion string `default:"" help:"override the protocol version offered at initialize"`

	// AllowedOrigins restricts the streamable-http transport's accepted
	// Origin header, comma-separated; empty means unrestricted.
	AllowedOrigins string `default:"" env:"MCP_ALLOWED_ORIGINS" help:"comma-separated allowed Origin values for streamable-http (DNS-rebinding protection)"`

	// EventStoreCapacity bounds the in-memory resumability ring buffer per
	// session/stream; 0 means unbounded.
	EventStoreCapacity int `default:"256" help:"per-stream resumability event buffer size (0=unbounded)"`

	// RequestTimeout is read from flags and the config file; cmd/mcp-server
	// does not use it.
	RequestTimeout time.Duration `default:"60s" help:"client request timeout"`

	// ManifestDir, if set, enables tool-manifest hot reload from a
	// directory of *.tool.json files.
	ManifestDir string `default:"" help:"directory of *.tool.json manifests to hot-reload as tools"`

	LogLevel string `default:"info" help:"log level: debug, info, warning, error"`
	LogsDir  string `default:"" help:"directory to store rotating log files (empty: log to stderr only)"`
	Debug    bool   `default:"false" help:"enable debug mode with stdout logging"`

	MetricsAddr string `default:"" help:"HTTP listen address for the Prometheus metrics endpoint (empty: disabled)"`
}

// FileOptions is the .ini file shape: every field optional, so a value left
// unset in the file falls through to the struct default or a later CLI/env
// override — file settings are a second, lower-priority default layer
// beneath whatever the operator passes on the command line.
type FileOptions struct {
	Transport          *string
	ListenAddr         *string
	Path               *string
	ProtocolVersion    *string
	AllowedOrigins     *string
	EventStoreCapacity *int
	RequestTimeout     *string
	ManifestDir        *string
	LogLevel           *string
	LogsDir            *string
	Debug              *bool
	MetricsAddr        *string
}

// LoadFile reads path's [server] section into a FileOptions. A missing file
// is not an error: it returns a zero-value FileOptions so ApplyFile is a
// no-op.
func LoadFile(path string) (*FileOptions, error) {
	cfg, err := ini.LooseLoad(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	section := cfg.Section("server")
	fo := &FileOptions{}
	assignString(section, "transport", &fo.Transport)
	assignString(section, "listen_addr", &fo.ListenAddr)
	assignString(section, "path", &fo.Path)
	assignString(section, "protocol_version", &fo.ProtocolVersion)
	assignString(section, "allowed_origins", &fo.AllowedOrigins)
	assignString(section, "request_timeout", &fo.RequestTimeout)
	assignString(section, "manifest_dir", &fo.ManifestDir)
	assignString(section, "log_level", &fo.LogLevel)
	assignString(section, "logs_dir", &fo.LogsDir)
	assignString(section, "metrics_addr", &fo.MetricsAddr)

	if key, err := section.GetKey("event_store_capacity"); err == nil {
		if n, err := key.Int(); err == nil {
			fo.EventStoreCapacity = &n
		}
	}
	if key, err := section.GetKey("debug"); err == nil {
		b := key.MustBool(false)
		fo.Debug = &b
	}
	return fo, nil
}

func assignString(section *ini.Section, key string, dst **string) {
	k, err := section.GetKey(key)
	if err != nil {
		return
	}
	v := k.String()
	if v != "" {
		*dst = &v
	}
}

// ApplyFile merges fo into opts, only where opts still holds its zero value
// or the struct-tag default the flag parser fills in, so a flag or env var
// the operator set to some other value is never clobbered by the file. A
// flag set explicitly to its default value counts as unset.
func ApplyFile(opts *Options, fo *FileOptions) {
	if fo == nil {
		return
	}
	if fo.Transport != nil && (opts.Transport == "" || opts.Transport == "stdio") {
		opts.Transport = *fo.Transport
	}
	if fo.ListenAddr != nil && (opts.ListenAddr == "" || opts.ListenAddr == ":8080") {
		opts.ListenAddr = *fo.ListenAddr
	}
	if fo.Path != nil && (opts.Path == "" || opts.Path == "/mcp") {
		opts.Path = *fo.Path
	}
	if fo.ProtocolVersion != nil && opts.ProtocolVersion == "" {
		opts.ProtocolVersion = *fo.ProtocolVersion
	}
	if fo.AllowedOrigins != nil && opts.AllowedOrigins == "" {
		opts.AllowedOrigins = *fo.AllowedOrigins
	}
	if fo.EventStoreCapacity != nil && (opts.EventStoreCapacity == 0 || opts.EventStoreCapacity == 256) {
		opts.EventStoreCapacity = *fo.EventStoreCapacity
	}
	if fo.RequestTimeout != nil && (opts.RequestTimeout == 0 || opts.RequestTimeout == 60*time.Second) {
		if d, err := time.ParseDuration(*fo.RequestTimeout); err == nil {
			opts.RequestTimeout = d
		}
	}
	if fo.ManifestDir != nil && opts.ManifestDir == "" {
		opts.ManifestDir = *fo.ManifestDir
	}
	if fo.LogLevel != nil && (opts.LogLevel == "" || opts.LogLevel == "info") {
		opts.LogLevel = *fo.LogLevel
	}
	if fo.LogsDir != nil && opts.LogsDir == "" {
		opts.LogsDir = *fo.LogsDir
	}
	if fo.Debug != nil && !opts.Debug {
		opts.Debug = *fo.Debug
	}
	if fo.MetricsAddr != nil && opts.MetricsAddr == "" {
		opts.MetricsAddr = *fo.MetricsAddr
	}
}
