package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/groupwire/mls-ffi-go/internal/backend"
	"github.com/groupwire/mls-ffi-go/internal/bridge"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi"
)

func main() {
	sel := backend.Active()
	log.Printf("mls-ffi version: %s", mlsffi.Version)
	log.Printf("crypto family: %s, identity: %t, storage: %s",
		sel.CryptoFamily, sel.IdentityEnabled, sel.StorageVariant)

	s, err := bridge.New()
	if err != nil {
		if errors.Is(err, backend.ErrNotBuilt) {
			fmt.Printf("backend unavailable: %v\n", err)
			return
		}
		log.Fatalf("unexpected failure composing surface: %v", err)
	}

	h, res := s.ClientNew([]byte("smoke"), 0, nil, 0, 0)
	if res.Code != mlsffi.StatusOK {
		log.Fatalf("client_new: %v: %s", res.Code, res.Detail)
	}
	if res := s.ReleaseHandle(h); res.Code != mlsffi.StatusOK {
		log.Fatalf("release: %v: %s", res.Code, res.Detail)
	}

	fmt.Println("surface composed successfully")
}
