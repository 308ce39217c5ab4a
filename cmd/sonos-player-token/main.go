package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/strefethen/sonos-player-go/internal/auth"
	"github.com/strefethen/sonos-player-go/internal/config"
)

func main() {
	subject := flag.String("sub", "", "client name recorded with each play (required)")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "token lifetime; 0 never expires")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.APIJWTSecret == "" {
		log.Fatal("API_JWT_SECRET is not set; authentication is disabled")
	}
	if *subject == "" {
		flag.Usage()
		os.Exit(2)
	}

	token, err := auth.GenerateToken(cfg.APIJWTSecret, *subject, *ttl)
	if err != nil {
		log.Fatalf("token error: %v", err)
	}
	fmt.Println(token)
}
