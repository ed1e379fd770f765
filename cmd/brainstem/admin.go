package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"golang.org/x/term"

	"github.com/brainstem-ai/brainstem/internal/middleware"
	"github.com/brainstem-ai/brainstem/internal/vault"
)

// runAdmin dispatches local administration subcommands. These operate
// directly on local files and never talk to a running gateway.
func runAdmin(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: admin requires a subcommand: secret-set, secret-list, hash-key", errUsage)
	}
	switch args[0] {
	case "secret-set":
		return adminSecretSet(args[1:])
	case "secret-list":
		return adminSecretList(args[1:])
	case "hash-key":
		return adminHashKey(args[1:])
	default:
		return fmt.Errorf("%w: unknown admin subcommand %q", errUsage, args[0])
	}
}

// credentialsDoc mirrors the on-disk credentials.toml shape.
type credentialsDoc struct {
	Providers map[string]string `toml:"providers"`
}

// adminSecretSet stores one provider secret in the credentials file,
// prompting for the value so it never lands in shell history.
func adminSecretSet(args []string) error {
	fs := flag.NewFlagSet("admin secret-set", flag.ContinueOnError)
	file := fs.String("file", vault.DefaultCredentialsPath(), "credentials file to update")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: usage: admin secret-set [--file PATH] <provider>", errUsage)
	}
	provider := fs.Arg(0)

	secret, err := promptSecret(fmt.Sprintf("Secret for %q: ", provider))
	if err != nil {
		return err
	}
	if secret == "" {
		return fmt.Errorf("%w: empty secret", errUsage)
	}

	var doc credentialsDoc
	if _, err := toml.DecodeFile(*file, &doc); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("parse %s: %w", *file, err)
	}
	if doc.Providers == nil {
		doc.Providers = make(map[string]string)
	}
	doc.Providers[provider] = secret

	if err := os.MkdirAll(filepath.Dir(*file), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(*file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", *file, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("stored secret for %q in %s\n", provider, *file)
	return nil
}

// adminSecretList shows the providers the vault would load, with
// secrets redacted.
func adminSecretList(args []string) error {
	fs := flag.NewFlagSet("admin secret-list", flag.ContinueOnError)
	file := fs.String("file", vault.DefaultCredentialsPath(), "credentials file to read")
	prefix := fs.String("env-prefix", "BRAINSTEM_SECRET_", "environment variable prefix")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	vlt, err := vault.NewFromLoaders(vault.FileLoader(*file), vault.EnvLoader(*prefix))
	if err != nil {
		return err
	}
	defer vlt.ReleaseAll()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tSECRET")
	for _, p := range vlt.Providers() {
		fmt.Fprintf(w, "%s\t%s\n", p, vlt.Redacted(p))
	}
	return w.Flush()
}

// adminHashKey prompts for a new API key secret and prints its bcrypt
// hash for pasting into the auth.api_keys config block.
func adminHashKey(args []string) error {
	fs := flag.NewFlagSet("admin hash-key", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	secret, err := promptSecret("API key secret: ")
	if err != nil {
		return err
	}
	if secret == "" {
		return fmt.Errorf("%w: empty secret", errUsage)
	}

	hash, err := middleware.HashKey(secret)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// promptSecret reads a secret from the terminal without echo, falling
// back to a plain line read when stdin is not a terminal.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	var s string
	if _, err := fmt.Fscanln(os.Stdin, &s); err != nil {
		return "", err
	}
	return s, nil
}
