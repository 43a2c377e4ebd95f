// Command devseed prepares an embedded ledger file for local runs: it writes a
// user and a gold price, then prints an access token for that user and a
// bcrypt hash for the ops basic-auth password.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"goldvault/internal/auth"
	"goldvault/internal/domain/goldprice"
	"goldvault/internal/domain/storage/boltledger"
	"goldvault/internal/domain/users"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	_ = godotenv.Load()

	var (
		path    = flag.String("db", envOr("BOLT_PATH", "goldvault.db"), "bolt ledger file")
		userID  = flag.String("user", "dev-user", "user id to seed")
		email   = flag.String("email", "dev@goldvault.local", "user email")
		phone   = flag.String("phone", "9999999999", "user phone")
		price   = flag.String("price", "6250.00", "gold price per gram in INR")
		opsPass = flag.String("ops-pass", "", "print a bcrypt hash for AUTH_BASIC_PASS_HASH")
		ttl     = flag.Duration("ttl", 72*time.Hour, "access token lifetime")
	)
	flag.Parse()

	p, err := decimal.NewFromString(*price)
	if err != nil || !p.IsPositive() {
		log.Fatalf("invalid price %q", *price)
	}

	store, err := boltledger.Open(*path)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.PutUser(&users.User{
		ID:          *userID,
		Name:        "Dev User",
		Email:       *email,
		Phone:       *phone,
		GoldBalance: decimal.Zero,
		IsActive:    true,
	}); err != nil {
		log.Fatal(err)
	}
	if err := store.PutGoldPrice(&goldprice.Price{Price: p, Currency: "INR", Unit: "gram"}); err != nil {
		log.Fatal(err)
	}

	secret := os.Getenv("AUTH_TOKEN_SECRET")
	if secret == "" {
		log.Fatal("AUTH_TOKEN_SECRET is not set")
	}
	iss := envOr("AUTH_TOKEN_ISS", "goldvault")
	token, err := auth.NewJWTAuthenticator(secret, iss, iss).GenerateToken(*userID, *ttl)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("seeded %s (user %s, price %s INR/g)\n", *path, *userID, p.StringFixed(2))
	fmt.Printf("ACCESS_TOKEN=%s\n", token)

	if *opsPass != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*opsPass), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("AUTH_BASIC_PASS_HASH=%s\n", hash)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
