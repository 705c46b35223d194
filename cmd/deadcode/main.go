package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(rest)
	case "config":
		return runConfigNoun(rest)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(rest)
	case "version":
		fmt.Printf("deadcode version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w *os.File) {
	fmt.Fprint(w, `deadcode - GitHub and JIRA webhooks relayed to an IRC channel

Usage:
  deadcode <noun> <action> [flags]

System Commands:
  system start      Start the relay in the foreground (alias: start)

Config Commands:
  config check      Validate syntax, policy, and integrity
  config lock       Authorize current state (update integrity hash)

General:
  version           Show version information
  help              Show this help message

The configuration is read from --config, $DEADCODE_CONFIG, ./config.yaml,
~/.config/deadcode/config.yaml or /etc/deadcode/config.yaml.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: deadcode system <action>")
	fmt.Fprintln(w, "Actions: start")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: deadcode config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printSystemStartHelp() {
	fmt.Println("Usage: deadcode system start [--config PATH]")
	fmt.Println("Connect to IRC and serve the webhook endpoints in the foreground.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: deadcode config lock [--config PATH]")
	fmt.Println("Record the BLAKE3 hash of the configuration in .checksums next to it.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: deadcode config check [--config PATH] [--json] [--strict]")
	fmt.Println("Validate configuration syntax, policy, and integrity.")
}
