// Command mcp-client connects to an MCP server, either by spawning it as
// a stdio child process or by POSTing to a Streamable-HTTP URL, then
// lists and exercises whatever tools, prompts, and resources the server
// advertises. The spawn-then-list-tools shape mirrors the teacher's own
// mcp/tester harness, which spawns a subprocess over stdio and drives its
// tools/list and tools/call methods by hand.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/honganh1206/mcp-runtime/logger"
	"github.com/honganh1206/mcp-runtime/mcp"
)

var Version = "dev"

var cli struct {
	Stdio struct {
		Command string   `arg:"" help:"server command to spawn"`
		Args    []string `arg:"" optional:"" help:"arguments to the server command"`
	} `cmd:"" help:"spawn the server as a stdio child process"`

	HTTP struct {
		URL string `arg:"" help:"Streamable-HTTP endpoint URL"`
	} `cmd:"" help:"connect to a Streamable-HTTP server"`

	Call     string `help:"tool name to call after listing (optional)"`
	Args     string `help:"JSON arguments object for the tool call, e.g. '{\"message\":\"hi\"}'"`
	LogLevel string `default:"warning" help:"debug, info, warning, error"`
}

func main() {
	ctx := kong.Parse(&cli, kong.Description("Drives an MCP server's list_tools/call_tool/list_prompts/list_resources."))
	logger.SetLevel(logger.ParseLevel(cli.LogLevel))

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var transport mcp.Transport
	var cleanup func()

	switch {
	case strings.HasPrefix(ctx.Command(), "stdio"):
		t, closeProc, err := spawnStdioTransport(cli.Stdio.Command, cli.Stdio.Args)
		if err != nil {
			logger.Fatal("failed to spawn server: %v", err)
		}
		transport = t
		cleanup = closeProc
	case strings.HasPrefix(ctx.Command(), "http"):
		transport = mcp.NewStreamableHTTPClientTransport(cli.HTTP.URL, nil)
		cleanup = func() {}
	default:
		logger.Fatal("unknown command %q", ctx.Command())
	}
	defer cleanup()

	client := mcp.NewClient(
		mcp.Implementation{Name: "mcp-client", Version: Version},
		mcp.ClientCapabilities{},
	)
	if err := client.Connect(runCtx, transport); err != nil {
		logger.Fatal("connect failed: %v", err)
	}
	defer client.Close()

	if _, err := client.Initialize(runCtx); err != nil {
		logger.Fatal("initialize failed: %v", err)
	}
	fmt.Printf("connected to %s v%s\n", client.ServerInfo().Name, client.ServerInfo().Version)

	tools, err := client.ListTools(runCtx)
	if err != nil {
		logger.Fatal("list_tools failed: %v", err)
	}
	fmt.Println("tools:")
	for _, tool := range tools {
		fmt.Printf("  - %s: %s\n", tool.Name, tool.Description)
	}

	prompts, err := client.ListPrompts(runCtx)
	if err != nil {
		logger.Fatal("list_prompts failed: %v", err)
	}
	fmt.Println("prompts:")
	for _, p := range prompts {
		fmt.Printf("  - %s: %s\n", p.Name, p.Description)
	}

	resources, err := client.ListResources(runCtx)
	if err != nil {
		logger.Fatal("list_resources failed: %v", err)
	}
	fmt.Println("resources:")
	for _, r := range resources {
		fmt.Printf("  - %s (%s)\n", r.URI, r.Name)
	}

	if cli.Call == "" {
		return
	}
	var args any
	if cli.Args != "" {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(cli.Args), &decoded); err != nil {
			logger.Fatal("invalid --args JSON: %v", err)
		}
		args = decoded
	}
	result, err := client.CallTool(runCtx, cli.Call, args, nil)
	if err != nil {
		logger.Fatal("call_tool %q failed: %v", cli.Call, err)
	}
	fmt.Printf("%s result:\n", cli.Call)
	for _, block := range result.Content {
		fmt.Printf("  %s\n", block.Text)
	}
}

// spawnStdioTransport starts command as a child process and wires its
// stdin/stdout into a stdio Transport, forwarding its stderr to this
// process's own stderr for visibility.
func spawnStdioTransport(command string, args []string) (*mcp.StdioTransport, func(), error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	transport := mcp.NewStdioTransport(stdout, stdin)
	cleanup := func() {
		stdin.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	return transport, cleanup, nil
}
