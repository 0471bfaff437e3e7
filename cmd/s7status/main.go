// Command s7status connects to an S7 PLC and reports connection status,
// optionally serving it as JSON over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lupaulus/s7link/s7"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Address    string  `json:"address"`
	Connected  bool    `json:"connected"`
	LastTimeMs float64 `json:"last_time_ms"`
	Chunks     int     `json:"chunks"`
	Error      string  `json:"error,omitempty"`
}

func main() {
	addr := flag.String("addr", "", "PLC IP address")
	rack := flag.Int("rack", 0, "rack number")
	slot := flag.Int("slot", 0, "slot number")
	httpAddr := flag.String("http", "", "if set, serve GET /status on this address (e.g. :8080)")
	flag.Parse()

	if *addr == "" {
		fmt.Fprintln(os.Stderr, "s7status: -addr is required")
		os.Exit(2)
	}

	client := s7.NewClient()
	connectErr := client.ConnectRackSlot(*addr, *rack, *slot)
	if connectErr != nil {
		log.Printf("connect to %s failed: %v", *addr, connectErr)
	} else {
		log.Printf("connected to %s (rack=%d slot=%d)", *addr, *rack, *slot)
		defer client.Disconnect()
	}

	if *httpAddr == "" {
		printStatus(*addr, client, connectErr)
		return
	}

	r := chi.NewRouter()
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		resp := StatusResponse{
			Address:    *addr,
			Connected:  client.Connected,
			LastTimeMs: client.LastTimeMs,
			Chunks:     client.Chunks,
		}
		if connectErr != nil {
			resp.Error = connectErr.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	srv := &http.Server{Addr: *httpAddr, Handler: r}
	go func() {
		log.Printf("serving status on %s", *httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func printStatus(addr string, client *s7.Client, connectErr error) {
	if connectErr != nil {
		fmt.Printf("%s: disconnected (%v)\n", addr, connectErr)
		return
	}
	fmt.Printf("%s: connected=%v last_time_ms=%.2f chunks=%d\n",
		addr, client.Connected, client.LastTimeMs, client.Chunks)
}
