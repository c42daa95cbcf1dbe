// Package main validates a strategy DSL file against a ticker universe,
// printing editor-style diagnostics.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"strategy-lab/internal/api"
)

func main() {
	tickers := flag.String("tickers", "", "Comma-separated ticker universe (required)")
	asJSON := flag.Bool("json", false, "Print the full response as JSON")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: compile [-tickers spy,tlt] [-json] <strategy-file>")
		os.Exit(2)
	}
	universe := splitTickers(*tickers)
	if len(universe) == 0 {
		fmt.Fprintln(os.Stderr, "-tickers is required")
		os.Exit(2)
	}

	path := flag.Arg(0)
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read source: %v\n", err)
		os.Exit(1)
	}

	resp := api.Compile(api.CompileRequest{Source: string(source), ValidTickers: universe})

	if *asJSON {
		json.NewEncoder(os.Stdout).Encode(resp)
	} else if resp.IsValid {
		fmt.Println("OK")
	} else {
		for _, issue := range resp.Errors {
			fmt.Fprintf(os.Stderr, "%s:%d:%d: %s\n", path, issue.Line, issue.Column, issue.Message)
		}
	}

	if !resp.IsValid {
		os.Exit(1)
	}
}

func splitTickers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(strings.ToLower(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
