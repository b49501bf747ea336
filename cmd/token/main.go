package main

import (
	"flag"
	"fmt"
	"live-chat/auth"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// token issues an identity token the server accepts, for local testing.
func main() {
	_ = godotenv.Load()
	subject := flag.String("sub", "", "Subject (user id)")
	name := flag.String("name", "", "Display name")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HMAC secret, defaults to JWT_SECRET")
	flag.Parse()

	if *subject == "" || *name == "" || *secret == "" {
		flag.Usage()
		os.Exit(2)
	}

	token, err := auth.NewTokenIssuer(*secret).GenerateToken(*subject, *name, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
