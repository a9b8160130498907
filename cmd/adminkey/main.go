// Command adminkey prints a new administrative API key and the hash to put
// in ADMIN_API_KEY_HASHES. The key is shown once and never stored.
package main

import (
	"fmt"
	"os"

	"github.com/BradenHooton/bastion/internal/auth"
)

func main() {
	key, hash, err := auth.NewAPIKeyManager(nil).GenerateAPIKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("API key (send as %s): %s\n", auth.APIKeyHeader, key)
	fmt.Printf("ADMIN_API_KEY_HASHES entry: %s\n", hash)
}
