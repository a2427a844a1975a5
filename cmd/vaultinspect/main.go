// Command vaultinspect prints the framing and header of a vault file. It
// needs no passphrase, verifies nothing and never prints entries.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Hussein-Mazeh/secretvault/internal/config"
	"github.com/Hussein-Mazeh/secretvault/store"
)

func main() {
	path := flag.String("vault", "", "vault file (default from config)")
	asJSON := flag.Bool("json", false, "print the header as JSON")
	flag.Parse()

	if *path == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		*path = cfg.Vault.Path
	}

	sealed, err := store.ReadSealed(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read vault: %v\n", err)
		os.Exit(1)
	}
	h := sealed.Header

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(h); err != nil {
			fmt.Fprintf(os.Stderr, "encode header: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("file:        %s (%d bytes)\n", *path, sealed.Size())
	fmt.Printf("format:      v%d\n", h.Version)
	fmt.Printf("vault id:    %s\n", h.VaultID)
	fmt.Printf("generation:  %d\n", h.Generation)
	fmt.Printf("cipher:      %s\n", h.Cipher)
	fmt.Printf("kdf:         %s m=%dMiB t=%d p=%d\n", h.KDF.Name, h.KDF.MemoryMB, h.KDF.Time, h.KDF.Parallelism)
	fmt.Printf("salt:        %s\n", hex.EncodeToString(h.Salt))
	fmt.Printf("created:     %s\n", h.CreatedAt.Format(time.RFC3339))
	fmt.Printf("updated:     %s\n", h.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("tag (unverified): %s\n", hex.EncodeToString(sealed.Tag()))
}
