package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/LordAkkarin/DeadCodeBot/internal/config"
	"github.com/LordAkkarin/DeadCodeBot/internal/doctor"
)

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	result := checkConfig(configPath)

	if jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode result: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

// checkConfig reports load failures in the same shape as validation issues.
func checkConfig(configPath string) *doctor.Result {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return &doctor.Result{
			Path:   configPath,
			Errors: []doctor.Issue{{Category: "config", Message: err.Error()}},
		}
	}
	return doctor.New(cfg).Validate()
}

func runConfigLock(args []string) int {
	var configPath string

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if configPath == "" {
		discovered, err := config.Discover()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		configPath = discovered
	}

	report, err := config.Lock(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}

	fmt.Printf("HASH %s: %s\n", report.Filename, report.Hash)
	fmt.Printf("Wrote %s\n", report.ChecksumPath)
	return 0
}
