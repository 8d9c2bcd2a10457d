// Command mcp-server boots a demonstration MCP server exposing one tool,
// one prompt, and one resource over the transport of the operator's choice.
// Flags load before anything else runs and pick the log destination, the
// same ordering the teacher's cmd/cmd.go uses for its own provider/model
// flags ahead of starting the chat loop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/invopop/jsonschema"
	"github.com/prometheus/client_golang/prometheus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/honganh1206/mcp-runtime/config"
	"github.com/honganh1206/mcp-runtime/logger"
	"github.com/honganh1206/mcp-runtime/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cli struct {
	config.Options
	ConfigFile string `default:"" help:".ini file of [server] defaults, overridden by flags/env above"`
}

func main() {
	kong.Parse(&cli, kong.Description("Demonstration MCP server over stdio, sse, or streamable-http."))

	if cli.ConfigFile != "" {
		fileCfg, err := config.LoadFile(cli.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: failed to load config file: %v\n", err)
		} else {
			config.ApplyFile(&cli.Options, fileCfg)
		}
	}

	logger.SetLevel(logger.ParseLevel(cli.LogLevel))
	setUpLogging(cli.LogsDir, cli.Debug)

	logger.Info("starting mcp-server v%s (transport=%s)", Version, cli.Transport)

	server := mcp.NewServer(
		mcp.Implementation{Name: "mcp-server", Version: Version},
		mcp.ServerCapabilities{
			Tools:     &mcp.ListChangedCapability{ListChanged: true},
			Prompts:   &mcp.ListChangedCapability{ListChanged: true},
			Resources: &mcp.ResourcesCapability{Subscribe: true, ListChanged: true},
		},
		"Demonstration server: one tool, one prompt, one resource.",
	)
	registerDemoFeatures(server.Registry())

	if cli.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics := mcp.NewMetrics(reg)
		_ = metrics
		go func() {
			logger.Info("metrics endpoint listening on %s", cli.MetricsAddr)
			if err := http.ListenAndServe(cli.MetricsAddr, mcp.MetricsHandler(reg)); err != nil {
				logger.Error("metrics endpoint stopped: %v", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cli.ManifestDir != "" {
		watcher, err := mcp.NewManifestWatcher(cli.ManifestDir, server.Registry(), 250*time.Millisecond)
		if err != nil {
			logger.Error("failed to start manifest watcher: %v", err)
		} else {
			if err := watcher.LoadExisting(); err != nil {
				logger.Warning("failed to load existing manifests: %v", err)
			}
			go watcher.Run(ctx)
			defer watcher.Close()
		}
	}

	var err error
	switch cli.Transport {
	case "stdio":
		err = runStdio(ctx, server)
	case "sse":
		err = runSSE(ctx, server, cli.ListenAddr, cli.Path)
	case "streamable-http":
		err = runStreamableHTTP(ctx, server, cli.ListenAddr, cli.Path, cli.EventStoreCapacity, cli.AllowedOrigins)
	default:
		err = fmt.Errorf("unknown transport %q", cli.Transport)
	}
	if err != nil {
		logger.Fatal("mcp-server exited: %v", err)
	}
}

func setUpLogging(logsDir string, debug bool) {
	if debug {
		logger.SetOutput(os.Stdout)
		return
	}
	if logsDir == "" {
		logger.SetOutput(os.Stderr)
		return
	}
	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(logsDir, "mcp-server.log"),
		MaxSize:    5,
		MaxBackups: 1,
		MaxAge:     1,
		Compress:   false,
	}
	logger.SetOutput(io.MultiWriter(fileLogger, os.Stderr))
}

func runStdio(ctx context.Context, server *mcp.Server) error {
	transport := mcp.NewStdioTransport(os.Stdin, os.Stdout)
	if err := server.Connect(ctx, transport); err != nil {
		return err
	}
	<-ctx.Done()
	return server.Close()
}

func runSSE(ctx context.Context, server *mcp.Server, addr, path string) error {
	transport := mcp.NewSSETransport(path + "/message")
	if err := server.Connect(ctx, transport); err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, transport.StreamHandler())
	mux.HandleFunc(path+"/message", transport.MessageHandler())
	return serveAndWaitForShutdown(ctx, addr, mux, server)
}

func runStreamableHTTP(ctx context.Context, server *mcp.Server, addr, path string, capacity int, allowedOrigins string) error {
	events := mcp.NewMemoryEventStore(capacity)
	transport := mcp.NewStreamableHTTPTransport(events)
	if allowedOrigins != "" {
		transport.AllowedOrigins = splitCSV(allowedOrigins)
	}
	if err := server.Connect(ctx, transport); err != nil {
		return err
	}
	return serveAndWaitForShutdown(ctx, addr, transport.Router(path), server)
}

func serveAndWaitForShutdown(ctx context.Context, addr string, handler http.Handler, server *mcp.Server) error {
	httpServer := &http.Server{Addr: addr, Handler: handler}
	go func() {
		logger.Info("listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped: %v", err)
		}
	}()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	return server.Close()
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func registerDemoFeatures(registry *mcp.Registry) {
	properties := orderedmap.New[string, *jsonschema.Schema]()
	properties.Set("message", &jsonschema.Schema{Type: "string"})
	echoSchema := &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   []string{"message"},
	}
	registry.AddTool(mcp.Tool{
		Name:        "echo",
		Description: "Echoes the message argument back as text content.",
		InputSchema: echoSchema,
	}, func(extra mcp.RequestHandlerExtra, args json.RawMessage) (*mcp.CallToolResult, error) {
		var params struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, err
		}
		return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: params.Message}}}, nil
	})

	registry.AddPrompt(mcp.Prompt{
		Name:        "greeting",
		Description: "Produces a greeting prompt for the given name.",
		Arguments:   []mcp.PromptArgument{{Name: "name", Description: "who to greet", Required: true}},
	}, func(extra mcp.RequestHandlerExtra, args map[string]string) (*mcp.GetPromptResult, error) {
		name := args["name"]
		if name == "" {
			name = "there"
		}
		return &mcp.GetPromptResult{
			Messages: []mcp.PromptMessage{{
				Role:    "user",
				Content: mcp.ContentBlock{Type: "text", Text: fmt.Sprintf("Say hello to %s.", name)},
			}},
		}, nil
	})

	registry.AddResource(mcp.Resource{
		URI:         "mem://server/status",
		Name:        "server-status",
		Description: "A static status string for this demo server.",
		MimeType:    "text/plain",
	}, func(extra mcp.RequestHandlerExtra, uri string) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []mcp.ResourceContents{{URI: uri, MimeType: "text/plain", Text: "ok"}},
		}, nil
	})
}
