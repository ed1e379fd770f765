// Command brainstem is the BrainStem execution gateway: an MCP tool
// server fronted by a guard pipeline, with an HTTP surface for the
// planning layer and a NATS-synced node registry.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

const version = "0.3.0"

// Sentinel errors classifying command failures into stable exit codes.
var (
	errUsage       = errors.New("usage error")
	errConfig      = errors.New("configuration error")
	errUnavailable = errors.New("service unavailable")
)

func main() {
	args := os.Args[1:]
	cmd := "gateway"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "gateway":
		err = runGateway(args)
	case "serve":
		err = runServe(args)
	case "status":
		err = runStatus(args)
	case "tools":
		err = runTools(args)
	case "registry":
		err = runRegistry(args)
	case "config-schema":
		err = runConfigSchema(args)
	case "doctor":
		err = runDoctor(args)
	case "admin":
		err = runAdmin(args)
	case "version":
		fmt.Println("brainstem " + version)
	case "help", "--help", "-h":
		printHelp()
	default:
		printHelp()
		err = fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	if err != nil {
		slog.Error("command failed", "command", cmd, "error", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the stable exit code classes: 2 usage,
// 3 config, 4 unavailable, 1 anything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, errConfig):
		return 3
	case errors.Is(err, errUnavailable):
		return 4
	default:
		return 1
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: brainstem <command> [options]

Commands:
  gateway        Run the full gateway (HTTP surface, protocol endpoint, registry sync)
  serve          Serve the protocol over stdio (for planner-spawned subprocesses)
  status         Probe a running gateway and report its identity
  tools          List the tools a running gateway exposes
  registry       List known nodes (--self for this gateway's node card)
  config-schema  Print the configuration schema as JSON
  doctor         Check local prerequisites (database, scratch dir, profile, bus)
  admin          Local administration (secret-set, secret-list, hash-key)
  version        Print the version

Exit codes: 0 ok, 2 usage, 3 configuration, 4 gateway unavailable, 1 other.
`)
}
