// Command admin-token prints an admin bearer token, or an argon2id hash of
// a shared admin secret for ADMIN_API_SECRET_HASH.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/diagnosis/stayhold/pkg/auth"
	"github.com/diagnosis/stayhold/pkg/config"
)

func main() {
	actor := flag.String("actor", "admin", "actor recorded on audit rows")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	hash := flag.String("hash-secret", "", "print the argon2id hash of this secret instead of a token")
	flag.Parse()

	if *hash != "" {
		h, err := auth.HashSecret(*hash)
		if err != nil {
			fmt.Fprintln(os.Stderr, "hash failed:", err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	cfg := config.Load()
	token, err := auth.NewAdminToken(*actor, cfg.Auth.JWTSecret, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token failed:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
