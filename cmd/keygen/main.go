// Command keygen creates an identity key pair. The address is the hex X25519
// public key used as a ledger identity.
package main

import (
	"crypto/rand"
	"encoding/json"
	"flag"
	"log"
	"os"

	"carevault.org/internal/keywrap"
)

func main() {
	log.SetFlags(0)
	out := flag.String("out", "", "Write the key pair to this file (mode 0600) instead of stdout")
	flag.Parse()

	kp, err := keywrap.GenerateKeyPair(rand.Reader)
	if err != nil {
		log.Fatalf("generate: %v", err)
	}
	data, err := json.MarshalIndent(map[string]string{
		"address":     kp.Address(),
		"private_key": kp.PrivateHex(),
	}, "", "  ")
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	data = append(data, '\n')

	if *out == "" {
		_, _ = os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}
	log.Printf("address %s", kp.Address())
}
