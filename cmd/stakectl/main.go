package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	defaultEndpoint = "http://localhost:7090"
	defaultPassEnv  = "STAKECTL_PASS"
	defaultTokenEnv = "STAKING_TOKEN"
	defaultHMACEnv  = "STAKING_HMAC_SECRET"
)

type command struct {
	usage string
	run   func(args []string, stdout, stderr io.Writer) int
}

var commands = map[string]command{
	"init":     {"init -config node.toml", runInit},
	"keygen":   {"keygen -out key.keystore [-pass-env VAR]", runKeygen},
	"address":  {"address -keystore key.keystore [-pass-env VAR]", runAddress},
	"token":    {"token (-keystore FILE | -subject ADDR) [-scopes s1,s2] [-ttl 1h]", runToken},
	"encode":   {"encode <claim|withdraw|add-items|remove-items|add-rarity|remove-rarity|valid-until> [flags]", runEncode},
	"decode":   {"decode <hex body>", runDecode},
	"stake":    {"stake -item ADDR [-lock 7|14|30] [-value N]", runStake},
	"claim":    {"claim -item ADDR -fee N [-return]", runClaim},
	"deposit":  {"deposit -amount N", runDeposit},
	"send":     {"send -to ADDR -body HEX [-value N] [-bounce]", runSend},
	"status":   {"status", runStatus},
	"estimate": {"estimate -item ADDR [-elapsed 168h]", runEstimate},
	"helper":   {"helper -item ADDR", runHelper},
}

var commandOrder = []string{"init", "keygen", "address", "token", "encode", "decode", "stake", "claim", "deposit", "send", "status", "estimate", "helper"}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 1
	}
	name := strings.TrimSpace(args[0])
	if name == "help" || name == "-h" || name == "--help" {
		printUsage(stdout)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		printUsage(stderr)
		return 1
	}
	return cmd.run(args[1:], stdout, stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: stakectl <command> [flags]")
	fmt.Fprintln(w)
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "HTTP commands read -endpoint (default %s), the bearer token from $%s and -sender for unauthenticated dev servers.\n", defaultEndpoint, defaultTokenEnv)
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
