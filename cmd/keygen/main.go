// Package main generates the secret material the registry needs at deploy
// time: the 32-byte registry key that consumer and token secrets are derived
// under, a random salt for passphrase-based key derivation, and bcrypt hashes
// for manually seeding operator credentials without running the full server.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	bcryptValue := flag.String("bcrypt", "", "print the bcrypt hash of the given value instead of generating keys")
	flag.Parse()

	if *bcryptValue != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*bcryptValue), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("bcrypt: %v", err)
		}
		fmt.Println(string(hash))
		return
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("generate registry key: %v", err)
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		log.Fatalf("generate salt: %v", err)
	}

	fmt.Printf("OCR_REGISTRY_SECRET_KEY_HEX=%s\n", hex.EncodeToString(key))
	fmt.Printf("OCR_REGISTRY_SECRET_SALT=%s\n", hex.EncodeToString(salt))
}
