package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brainstem-ai/brainstem/internal/adapter/mcp"
	"github.com/brainstem-ai/brainstem/internal/adapter/sqlite"
	"github.com/brainstem-ai/brainstem/internal/config"
	"github.com/brainstem-ai/brainstem/internal/domain/node"
	"github.com/brainstem-ai/brainstem/internal/vault"
	natsgo "github.com/nats-io/nats.go"
)

const probeTimeout = 10 * time.Second

// gatewayFlags is the flag set shared by the probe commands.
func gatewayFlags(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	url := fs.String("url", "http://localhost:8080", "gateway base URL")
	key := fs.String("api-key", os.Getenv("BRAINSTEM_API_KEY"), "API key for authenticated gateways")
	return fs, url, key
}

func probeHeaders(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + key}
}

// runStatus connects to a running gateway's protocol endpoint and
// reports its identity.
func runStatus(args []string) error {
	fs, url, key := gatewayFlags("status")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	client, err := mcp.NewHTTPClient("brainstem-cli", version, *url+"/mcp", probeHeaders(*key))
	if err != nil {
		return fmt.Errorf("%w: %v", errUnavailable, err)
	}
	defer client.Close()

	res, err := client.Connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errUnavailable, *url, err)
	}

	fmt.Printf("server:   %s %s\n", res.ServerInfo.Name, res.ServerInfo.Version)
	fmt.Printf("protocol: %s\n", res.ProtocolVersion)
	fmt.Printf("tools:    %d\n", len(client.Tools()))
	return nil
}

// runTools lists the tools a running gateway exposes.
func runTools(args []string) error {
	fs, url, key := gatewayFlags("tools")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	client, err := mcp.NewHTTPClient("brainstem-cli", version, *url+"/mcp", probeHeaders(*key))
	if err != nil {
		return fmt.Errorf("%w: %v", errUnavailable, err)
	}
	defer client.Close()

	if _, err := client.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", errUnavailable, *url, err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, t := range client.Tools() {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
	}
	return w.Flush()
}

// runRegistry lists the nodes a running gateway knows about, or with
// --self prints the gateway's own node card.
func runRegistry(args []string) error {
	fs, url, key := gatewayFlags("registry")
	self := fs.Bool("self", false, "print this gateway's own node card")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	if *self {
		var card node.Info
		if err := getJSON(ctx, *url+"/.well-known/node.json", *key, &card); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(card)
	}

	var nodes []node.Info
	if err := getJSON(ctx, *url+"/registry/nodes", *key, &nodes); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLE\tTRUST\tCAPABILITIES\tLAST SEEN")
	for _, n := range nodes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			n.ID, n.Role, n.Trust, len(n.Capabilities), n.LastSeen.Format(time.RFC3339))
	}
	return w.Flush()
}

func getJSON(ctx context.Context, url, key string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errUnavailable, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", errUnavailable, url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// runConfigSchema prints the configuration schema as JSON.
func runConfigSchema(_ []string) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(config.Schema())
}

// runDoctor checks local prerequisites: config, database, scratch
// directory, credentials, and the sync bus when enabled.
func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	failed := 0
	check := func(name string, err error) {
		if err != nil {
			failed++
			fmt.Printf("FAIL  %-12s %v\n", name, err)
			return
		}
		fmt.Printf("ok    %s\n", name)
	}

	cfg, err := loadConfig(*configPath)
	check("config", err)
	if err != nil {
		return fmt.Errorf("%w: cannot continue without config", errConfig)
	}

	check("database", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		db, err := sqlite.Open(ctx, cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		return sqlite.RunMigrations(ctx, db)
	}())

	check("scratch", func() error {
		if err := os.MkdirAll(cfg.Guard.ScratchDir, 0o755); err != nil {
			return err
		}
		probe, err := os.CreateTemp(cfg.Guard.ScratchDir, "doctor-*")
		if err != nil {
			return err
		}
		probe.Close()
		return os.Remove(probe.Name())
	}())

	check("credentials", func() error {
		path := cfg.Vault.CredentialsFile
		if path == "" {
			path = vault.DefaultCredentialsPath()
		}
		_, err := vault.NewFromLoaders(vault.FileLoader(path), vault.EnvLoader(cfg.Vault.EnvPrefix))
		return err
	}())

	if cfg.NATS.Enabled {
		check("nats", func() error {
			nc, err := natsgo.Connect(cfg.NATS.URL, natsgo.Timeout(probeTimeout))
			if err != nil {
				return err
			}
			nc.Close()
			return nil
		}())
	}

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Println("all checks passed")
	return nil
}
