package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/r2lab/sidecar/internal/broker"
	"github.com/r2lab/sidecar/internal/category"
	"github.com/r2lab/sidecar/internal/websocket"
)

const version = "1.0.0"

const (
	defaultURL     = "wss://r2lab-sidecar.inria.fr:443/"
	develURL       = "ws://localhost:10000/"
	defaultSSLCert = "/etc/dsissl/auto/prod-r2lab.inria.fr/fullchain.pem"
	defaultSSLKey  = "/etc/dsissl/auto/prod-r2lab.inria.fr/privkey.pem"
)

// listenAddr turns a ws:// or wss:// url into a host:port bind
// address, and says whether TLS is wanted.
func listenAddr(rawURL string) (addr string, secure bool, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false, fmt.Errorf("parse url %s: %w", rawURL, err)
	}
	switch parsed.Scheme {
	case "ws":
		secure = false
	case "wss":
		secure = true
	default:
		return "", false, fmt.Errorf("unsupported scheme %q in %s", parsed.Scheme, rawURL)
	}
	host, port := parsed.Hostname(), parsed.Port()
	if port == "" {
		if secure {
			port = "443"
		} else {
			port = "80"
		}
	}
	return host + ":" + port, secure, nil
}

func main() {
	sidecarURL := flag.String("url", defaultURL, "ws:// or wss:// url to listen on")
	cert := flag.String("cert", defaultSSLCert, "SSL certificate (wss only)")
	key := flag.String("key", defaultSSLKey, "private key for SSL certificate (wss only)")
	devel := flag.Bool("devel", false, "shorthand for -url "+develURL)
	period := flag.Duration("period", 15*time.Second, "monitoring period")
	debug := flag.Bool("debug", false, "enable debug mode")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sidecar-server %s\n", version)
		return
	}

	broker.Debug = *debug

	rawURL := *sidecarURL
	if *devel {
		rawURL = develURL
	}
	addr, secure, err := listenAddr(rawURL)
	if err != nil {
		log.Fatalf("Bad sidecar url: %v", err)
	}

	certFile, keyFile := "", ""
	if secure {
		certFile, keyFile = *cert, *key
		if _, err := os.Stat(certFile); err != nil {
			log.Fatalf("Cannot find cert file %s", certFile)
		}
		if _, err := os.Stat(keyFile); err != nil {
			log.Fatalf("Cannot find key file %s", keyFile)
		}
	}

	registry := category.NewRegistry(category.DefaultDirs)
	b := broker.New(registry)
	go b.Run(context.Background(), *period)

	server := websocket.NewServer(b)
	if err := server.ListenAndServe(addr, certFile, keyFile); err != nil {
		log.Fatalf("Sidecar server failed: %v", err)
	}
}
