package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/example/storefront-orders/internal/auth"
	"github.com/example/storefront-orders/internal/config"
)

// token signs an access token for an operator or a test customer with the
// API's JWT_SECRET and TOKEN_EXPIRY.
func main() {
	userID := flag.String("user", "", "user id of the principal")
	email := flag.String("email", "", "email of the principal, used for order emails")
	role := flag.String("role", auth.RoleCustomer, "role of the principal (customer or admin)")
	flag.Parse()

	if *userID == "" {
		log.Fatal("[Token] -user is required")
	}
	if *role != auth.RoleCustomer && *role != auth.RoleAdmin {
		log.Fatalf("[Token] Unknown role %q", *role)
	}

	cfg := config.Load()
	if err := cfg.ValidateIssuer(); err != nil {
		log.Fatalf("[Token] Invalid configuration: %v", err)
	}

	token, expiresAt, err := auth.NewJWTService(cfg.JWTSecret, cfg.TokenExpiry).GenerateAccessToken(*userID, *email, *role)
	if err != nil {
		log.Fatalf("[Token] Failed to sign token: %v", err)
	}
	log.Printf("[Token] Issued %s token for %s, expires %s", *role, *userID, expiresAt.Format(time.RFC3339))
	fmt.Fprintln(os.Stdout, token)
}
