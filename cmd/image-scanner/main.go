package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/r2lab/sidecar/pkg/sidecar"
)

// Walks the node-images tree and pushes, per node, the list of images
// available for it. One shot: gather, send, exit.

func main() {
	sidecarURL := flag.String("sidecar", sidecar.DefaultURL, "sidecar server url")
	imagesDir := flag.String("images-dir", "/var/lib/node-images", "location of the node-images dir")
	nodes := flag.Int("nodes", 37, "number of nodes on the testbed")
	verbose := flag.Bool("verbose", false, "print the gathered batch before sending")
	flag.Parse()

	batch := make([]map[string]any, 0, *nodes)
	for index := 1; index <= *nodes; index++ {
		pattern := filepath.Join(*imagesDir, "*", fmt.Sprintf("fit%02d*", index))
		matches, err := filepath.Glob(pattern)
		if err != nil {
			log.Fatalf("Bad images dir: %v", err)
		}
		images := make([]string, 0, len(matches))
		for _, match := range matches {
			rel, err := filepath.Rel(*imagesDir, match)
			if err != nil {
				rel = match
			}
			images = append(images, rel)
		}
		batch = append(batch, map[string]any{
			"id":     index,
			"images": images,
		})
	}

	if *verbose {
		pretty, _ := json.MarshalIndent(batch, "", "  ")
		fmt.Println(string(pretty))
	}

	conn, err := sidecar.Dial(*sidecarURL)
	if err != nil {
		log.Fatalf("Sidecar connect: %v", err)
	}
	defer conn.Close()

	if err := conn.Info("nodes", batch); err != nil {
		log.Fatalf("Send image infos: %v", err)
	}
	log.Printf("sent image lists for %d nodes", len(batch))
}
