package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/fixtures_backend/utils"
)

// Issues a signed bearer token for local development and smoke tests.
// Production tokens come from the identity provider; this tool just signs
// with the same API_SECRET the service validates against.
func main() {
	customerID := flag.String("customer-id", "", "Required: customer id to embed in the token")
	userID := flag.Int("user-id", 1, "User id claim")
	name := flag.String("name", "dev", "User name claim")
	role := flag.String("role", "", "Role claim (admin bypasses tenant scoping)")
	flag.Parse()

	if strings.TrimSpace(*customerID) == "" {
		fmt.Fprintln(os.Stderr, "--customer-id is required")
		os.Exit(1)
	}
	if os.Getenv("TOKEN_HOUR_LIFESPAN") == "" {
		os.Setenv("TOKEN_HOUR_LIFESPAN", "24")
	}

	token, err := utils.JwtGenerate(*userID, *name, *customerID, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token generation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
