package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/r2lab/sidecar/internal/bridge"
	"github.com/r2lab/sidecar/internal/mqttclient"
	"github.com/r2lab/sidecar/pkg/sidecar"
)

func main() {
	mqttURL := flag.String("broker", "tcp://localhost:1883", "MQTT broker url")
	sidecarURL := flag.String("sidecar", sidecar.DevelURL, "sidecar server url")
	flag.Parse()

	conn, err := sidecar.Dial(*sidecarURL)
	if err != nil {
		log.Fatalf("Sidecar connect: %v", err)
	}
	defer conn.Close()

	mqttc, err := mqttclient.New(mqttclient.Options{
		BrokerURL: *mqttURL,
		ClientID:  fmt.Sprintf("sidecar-bridge-%d", time.Now().UnixNano()),
	})
	if err != nil {
		log.Fatalf("MQTT connect: %v", err)
	}
	defer mqttc.Close()

	b := bridge.New(mqttc, conn)
	if err := b.Start(); err != nil {
		log.Fatalf("Bridge subscribe: %v", err)
	}

	// drain the broadcasts we receive back; the connection dying is
	// the bridge's cue to exit and let systemd restart it
	for {
		if _, err := conn.Read(); err != nil {
			log.Fatalf("Sidecar connection lost: %v", err)
		}
	}
}
