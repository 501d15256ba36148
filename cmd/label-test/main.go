// Prueba de punta a punta contra el marketplace real: resuelve el envio
// de una orden o pack de prueba y deja la etiqueta en etiqueta_test.pdf.
//
// Uso:
//
//	TEST_ORDER_ID=2000001111 go run ./cmd/label-test
//	TEST_PACK_ID=2000000222 go run ./cmd/label-test
//
// Las credenciales salen de las variables MELI_* o del archivo de token
// (MELI_TOKEN_FILE, por defecto meli_tokens.json).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pvaldebenito/scanbox/internal/integrations/meli"
)

func main() {
	_ = godotenv.Load()

	orderID := os.Getenv("TEST_ORDER_ID")
	packID := os.Getenv("TEST_PACK_ID")
	if orderID == "" && packID == "" {
		fmt.Fprintln(os.Stderr, "define TEST_ORDER_ID o TEST_PACK_ID")
		os.Exit(2)
	}

	tokens := meli.NewTokenStore(meli.DefaultBaseURL, os.Getenv("MELI_TOKEN_FILE"))
	client := meli.New(meli.DefaultBaseURL, tokens)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := client.EnsureAccessToken(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "sin credenciales del marketplace: %v\n", err)
		os.Exit(1)
	}

	pdf, shipmentID, err := client.DownloadLabelByOrderOrPack(ctx, orderID, packID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "no se pudo bajar la etiqueta: %v\n", err)
		os.Exit(1)
	}

	out := "etiqueta_test.pdf"
	if err := os.WriteFile(out, pdf, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "no se pudo escribir %s: %v\n", out, err)
		os.Exit(1)
	}

	fmt.Printf("ok: shipment %s, %d bytes en %s\n", shipmentID, len(pdf), out)
}
