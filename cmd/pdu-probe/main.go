//go:build !no_serial
// +build !no_serial

package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.com/r2lab/sidecar/internal/bridge"
	"github.com/r2lab/sidecar/internal/mqttclient"
)

// The PDU controller prints one "outlet,watts" line per outlet per
// sweep. Readings are batched per sweep and published as one record
// list so the sidecar sees a single info batch.

func main() {
	port := flag.String("port", "/dev/ttyUSB0", "serial port for the PDU controller")
	baud := flag.Int("baud", 9600, "serial baud rate")
	mqttURL := flag.String("broker", "tcp://localhost:1883", "MQTT broker url")
	outlets := flag.Int("outlets", 8, "number of outlets on the PDU")
	flag.Parse()

	mqttc, err := mqttclient.New(mqttclient.Options{
		BrokerURL: *mqttURL,
		ClientID:  fmt.Sprintf("pdu-probe-%d", time.Now().UnixNano()),
	})
	if err != nil {
		log.Fatalf("MQTT connect: %v", err)
	}
	defer mqttc.Close()

	s, err := serial.OpenPort(&serial.Config{Name: *port, Baud: *baud})
	if err != nil {
		log.Fatalf("Open serial port %s: %v", *port, err)
	}

	topic := bridge.TopicPrefix + "pdus"
	batch := make([]map[string]any, 0, *outlets)
	scanner := bufio.NewScanner(s)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			log.Printf("ignoring unparseable line %q", line)
			continue
		}
		outlet, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		watts, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			log.Printf("ignoring unparseable line %q", line)
			continue
		}
		batch = append(batch, map[string]any{
			"id":         outlet,
			"draw_watts": watts,
			"on":         watts > 0.5,
		})
		if len(batch) < *outlets {
			continue
		}
		payload, _ := json.Marshal(batch)
		if err := mqttc.Publish(topic, payload); err != nil {
			log.Printf("publish failed: %v", err)
		} else {
			log.Printf("published %d outlet readings", len(batch))
		}
		batch = batch[:0]
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Serial read: %v", err)
	}
}
