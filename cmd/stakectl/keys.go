package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"nftstake/cmd/internal/passphrase"
	"nftstake/config"
	"nftstake/crypto"
	"nftstake/gateway/middleware"
)

func runInit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", "./node.toml", "node configuration to load or create")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	_, statErr := os.Stat(*path)
	created := os.IsNotExist(statErr)
	cfg, err := config.Load(*path)
	if err != nil {
		return fail(stderr, err)
	}
	if created {
		fmt.Fprintf(stdout, "created %s\n", *path)
		fmt.Fprintf(stdout, "admin keystore: %s\n", cfg.AdminKeystorePath)
	}
	fmt.Fprintf(stdout, "master:       %s\n", cfg.Master.Address)
	fmt.Fprintf(stdout, "admin:        %s\n", cfg.Master.Admin)
	fmt.Fprintf(stdout, "token minter: %s\n", cfg.Master.TokenMinter)
	fmt.Fprintf(stdout, "token wallet: %s\n", cfg.Master.TokenWallet)
	return 0
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", "keystore output path")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*out) == "" {
		return fail(stderr, errors.New("-out is required"))
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fail(stderr, fmt.Errorf("keystore %s already exists (use -force to overwrite)", *out))
		}
	}
	pass, err := passphrase.NewSource(*passEnv, "new keystore").Get()
	if err != nil {
		return fail(stderr, err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fail(stderr, err)
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, key.Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("keystore", "", "keystore path")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	addr, err := keystoreAddress(*path, *passEnv)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, addr.String())
	return 0
}

// runToken signs a bearer token for stakingd. The subject is either read
// from a keystore or given directly.
func runToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("keystore", "", "keystore whose address becomes the subject")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	subject := fs.String("subject", "", "subject address when no keystore is used")
	secretEnv := fs.String("secret-env", defaultHMACEnv, "environment variable holding the HMAC secret")
	scopes := fs.String("scopes", "", "comma separated scopes, e.g. "+middleware.ScopeAdmin)
	issuer := fs.String("issuer", "stakectl", "token issuer")
	audience := fs.String("audience", "", "token audience")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return fail(stderr, fmt.Errorf("%s must hold the HMAC secret", *secretEnv))
	}

	var addr crypto.Address
	switch {
	case *path != "":
		resolved, err := keystoreAddress(*path, *passEnv)
		if err != nil {
			return fail(stderr, err)
		}
		addr = resolved
	case *subject != "":
		decoded, err := crypto.DecodeAddress(*subject)
		if err != nil {
			return fail(stderr, fmt.Errorf("subject: %w", err))
		}
		addr = decoded
	default:
		return fail(stderr, errors.New("either -keystore or -subject is required"))
	}

	token, err := middleware.IssueToken(secret, addr, splitList(*scopes), *issuer, *audience, *ttl)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func keystoreAddress(path, passEnv string) (crypto.Address, error) {
	if strings.TrimSpace(path) == "" {
		return crypto.Address{}, errors.New("-keystore is required")
	}
	pass, err := passphrase.NewSource(passEnv, path).Get()
	if err != nil {
		return crypto.Address{}, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return crypto.Address{}, err
	}
	return key.Address(), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
