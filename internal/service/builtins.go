package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/brainstem-ai/brainstem/internal/domain"
	"github.com/brainstem-ai/brainstem/internal/domain/guard"
	"github.com/brainstem-ai/brainstem/internal/domain/tool"
	"github.com/brainstem-ai/brainstem/internal/resilience"
	"github.com/brainstem-ai/brainstem/internal/sandbox"
)

// BuiltinDeps carries the infrastructure the built-in tools run on.
type BuiltinDeps struct {
	Exec    *Executor
	Sandbox *sandbox.Sandbox
	Health  *resilience.Tracker
	Client  *http.Client
	Rover   *Rover

	// WorkDir anchors relative file_read paths. Defaults to the process
	// working directory when empty.
	WorkDir string

	// MaxBody caps file_read and http_fetch payloads. Defaults to 64 KiB.
	MaxBody int
}

const defaultMaxBody = 64 * 1024

// Builtins returns the tool set every gateway registers at startup:
// echo and the simulated rover tools for diagnostics, plus one tool per
// access kind so guard profiles have something real to govern.
func Builtins(deps BuiltinDeps) []tool.Definition {
	if deps.MaxBody <= 0 {
		deps.MaxBody = defaultMaxBody
	}
	if deps.Rover == nil {
		deps.Rover = NewRover()
	}
	if deps.Client == nil {
		deps.Client = http.DefaultClient
	}

	defs := []tool.Definition{echoTool()}
	defs = append(defs, roverTools(deps.Rover)...)
	defs = append(defs,
		shellExecTool(deps.Exec),
		httpFetchTool(deps.Client, deps.Health, deps.MaxBody),
		fileReadTool(deps.WorkDir, deps.MaxBody),
		fileWriteTool(deps.Sandbox),
	)
	return defs
}

// echoTool returns its input unchanged. It exists so the full
// invocation path can be probed without side effects.
func echoTool() tool.Definition {
	return tool.Definition{
		Spec: tool.Spec{
			Name:        "echo",
			Description: "Return the input string unchanged.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"input": tool.StringProp("Text to echo back."),
			}, "input"),
		},
		Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			return tool.TextResult(stringArg(args, "input")), nil
		},
	}
}

// shellExecTool runs a command line through the bounded executor. A
// non-zero exit or a timeout is reported in-band as an error result;
// only spawn failures surface as handler errors.
func shellExecTool(exec *Executor) tool.Definition {
	return tool.Definition{
		Spec: tool.Spec{
			Name:        "shell_exec",
			Description: "Run a shell command and return its combined output.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"cmd": tool.StringProp("Command line to execute."),
			}, "cmd"),
			Access: []guard.AccessKind{guard.AccessCommand},
		},
		Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			cmd := stringArg(args, "cmd")
			res, err := exec.Run(ctx, cmd)
			if err != nil {
				if errors.Is(err, domain.ErrTimeout) {
					return tool.ErrorResult("command timed out\n%s", res.Output), nil
				}
				return nil, err
			}
			if res.ExitCode != 0 {
				return tool.ErrorResult("exit %d\n%s", res.ExitCode, res.Output), nil
			}
			out := res.Output
			if res.Truncated {
				out += "\n[output truncated]"
			}
			return tool.TextResult(out), nil
		},
	}
}

// httpFetchTool performs a GET or HEAD against a URL. Outcomes feed the
// per-host circuit breaker; an open circuit short-circuits the request.
func httpFetchTool(client *http.Client, health *resilience.Tracker, maxBody int) tool.Definition {
	return tool.Definition{
		Spec: tool.Spec{
			Name:        "http_fetch",
			Description: "Fetch a URL and return the status line and body.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"url":    tool.StringProp("Absolute http or https URL."),
				"method": {Type: "string", Description: "Request method, default GET.", Enum: []string{"GET", "HEAD"}},
			}, "url"),
			Access: []guard.AccessKind{guard.AccessNetwork},
		},
		Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			rawURL := stringArg(args, "url")
			u, err := url.Parse(rawURL)
			if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
				return tool.ErrorResult("invalid url %q", rawURL), nil
			}
			method := stringArg(args, "method")
			if method == "" {
				method = http.MethodGet
			}

			var body string
			var status string
			do := func() error {
				req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
				if err != nil {
					return err
				}
				resp, err := client.Do(req)
				if err != nil {
					return err
				}
				defer resp.Body.Close()

				data, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBody)))
				if err != nil {
					return err
				}
				status = resp.Status
				body = string(data)
				if resp.StatusCode >= 500 {
					return fmt.Errorf("upstream status %s", resp.Status)
				}
				return nil
			}

			provider := "http:" + u.Host
			if health != nil {
				err = health.Execute(provider, do)
			} else {
				err = do()
			}
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return tool.ErrorResult("host %s is failing, circuit open", u.Host), nil
			}
			if err != nil && status == "" {
				return tool.ErrorResult("fetch %s: %v", rawURL, err), nil
			}
			if err != nil {
				return tool.ErrorResult("%s\n%s", status, body), nil
			}
			return tool.TextResult(fmt.Sprintf("%s\n%s", status, body)), nil
		},
	}
}

// fileReadTool reads a file relative to the work directory, bounded at
// maxBody bytes.
func fileReadTool(workDir string, maxBody int) tool.Definition {
	return tool.Definition{
		Spec: tool.Spec{
			Name:        "file_read",
			Description: "Read a text file and return its contents.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"path": tool.StringProp("File path; relative paths resolve against the work directory."),
			}, "path"),
			Access: []guard.AccessKind{guard.AccessFileRead},
		},
		Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			path := resolvePath(workDir, stringArg(args, "path"))
			f, err := os.Open(path)
			if err != nil {
				return tool.ErrorResult("read %s: %v", path, err), nil
			}
			defer f.Close()

			data, err := io.ReadAll(io.LimitReader(f, int64(maxBody)+1))
			if err != nil {
				return tool.ErrorResult("read %s: %v", path, err), nil
			}
			if len(data) > maxBody {
				return tool.TextResult(string(data[:maxBody]) + "\n[truncated]"), nil
			}
			return tool.TextResult(string(data)), nil
		},
	}
}

// fileWriteTool writes a file. Relative paths land in the sandbox
// scratch directory; absolute paths were already vetted by the guard.
func fileWriteTool(box *sandbox.Sandbox) tool.Definition {
	return tool.Definition{
		Spec: tool.Spec{
			Name:        "file_write",
			Description: "Write content to a file, creating parent directories.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"path":    tool.StringProp("Target path; relative paths land in the scratch directory."),
				"content": tool.StringProp("Content to write."),
			}, "path", "content"),
			Access: []guard.AccessKind{guard.AccessFileWrite},
		},
		Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			path := stringArg(args, "path")
			if !filepath.IsAbs(path) && box != nil {
				path = box.ScratchPath(path)
			}
			content := stringArg(args, "content")

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return tool.ErrorResult("write %s: %v", path, err), nil
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return tool.ErrorResult("write %s: %v", path, err), nil
			}
			return tool.TextResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path)), nil
		},
	}
}

// resolvePath anchors relative paths at the work directory.
func resolvePath(workDir, path string) string {
	if path == "" || filepath.IsAbs(path) || workDir == "" {
		return path
	}
	return filepath.Join(workDir, path)
}

// stringArg extracts a string argument, returning "" when absent. The
// registry has already validated types against the tool's schema.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// numberArg extracts a numeric argument, returning 0 when absent.
func numberArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
