package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// printResult writes v as indented JSON when --json is set, otherwise the
// human summary.
func printResult(v any, human string) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Println(human)
	return nil
}
