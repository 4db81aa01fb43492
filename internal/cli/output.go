package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

var asJSON bool

// printJSON writes v as indented JSON to stdout
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func header(title string) {
	fmt.Println()
	fmt.Println(strings.Repeat("═", 59))
	fmt.Printf("  %s\n", title)
	fmt.Println(strings.Repeat("═", 59))
	fmt.Println()
}
