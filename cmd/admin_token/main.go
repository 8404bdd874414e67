package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"monopoly_server/internal/service"

	"github.com/joho/godotenv"
)

// Prints an admin token for the /api/v1/admin endpoints.
func main() {
	_ = godotenv.Load()

	subject := flag.String("sub", "admin", "token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		log.Fatal("ADMIN_JWT_SECRET not set")
	}
	service.InitJWT(secret)

	token, err := service.GenerateAdminJWT(*subject, *ttl)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Println(token)
}
