//go:build no_serial
// +build no_serial

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/r2lab/sidecar/internal/bridge"
	"github.com/r2lab/sidecar/internal/mqttclient"
)

// Simulation variant for boxes without the serial-attached PDU
// controller: publishes plausible outlet readings on a fixed cadence.

func main() {
	mqttURL := flag.String("broker", "tcp://localhost:1883", "MQTT broker url")
	outlets := flag.Int("outlets", 8, "number of outlets on the PDU")
	interval := flag.Duration("interval", 5*time.Second, "sweep interval")
	flag.Parse()

	mqttc, err := mqttclient.New(mqttclient.Options{
		BrokerURL: *mqttURL,
		ClientID:  fmt.Sprintf("pdu-probe-%d", time.Now().UnixNano()),
	})
	if err != nil {
		log.Fatalf("MQTT connect: %v", err)
	}
	defer mqttc.Close()

	topic := bridge.TopicPrefix + "pdus"
	for {
		batch := make([]map[string]any, 0, *outlets)
		for outlet := 1; outlet <= *outlets; outlet++ {
			watts := 0.0
			if rand.Intn(4) > 0 {
				watts = 20.0 + rand.Float64()*60.0
			}
			batch = append(batch, map[string]any{
				"id":         outlet,
				"draw_watts": watts,
				"on":         watts > 0.5,
			})
		}
		payload, _ := json.Marshal(batch)
		if err := mqttc.Publish(topic, payload); err != nil {
			log.Printf("publish failed: %v", err)
		} else {
			log.Printf("published %d simulated outlet readings", len(batch))
		}
		time.Sleep(*interval)
	}
}
