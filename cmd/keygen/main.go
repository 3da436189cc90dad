// keygen generates an ed25519 keypair for ledger signing and writes the
// 32-byte seed and public key as lowercase hex files.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	var (
		privOut = flag.String("priv", "ledger_key.hex", "private key (seed) output path")
		pubOut  = flag.String("pub", "ledger_key.pub.hex", "public key output path")
	)
	flag.Parse()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}

	if err := os.WriteFile(*privOut, []byte(hex.EncodeToString(priv.Seed())), 0o600); err != nil {
		log.Fatalf("write private key: %v", err)
	}
	if err := os.WriteFile(*pubOut, []byte(hex.EncodeToString(pub)), 0o644); err != nil {
		log.Fatalf("write public key: %v", err)
	}
	fmt.Printf("wrote %s and %s\n", *privOut, *pubOut)
}
