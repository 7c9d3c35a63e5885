package category

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Category is one named partition of the testbed status. Keyed
// categories (nodes, phones, pdus) are persistent and indexed by
// record id; transient categories (leases) are wholesale-replaced on
// every update and never touch storage.
//
// A Category is not safe for concurrent use: the broker funnels all
// mutation through its single coordinator goroutine.
type Category struct {
	name  string
	keyed bool
	dirs  []string

	// filename remembers the storage location that last worked, for
	// both load and store.
	filename string

	contents []Record
	byID     map[any]Record
}

func newCategory(name string, keyed bool, dirs []string) *Category {
	return &Category{
		name:     name,
		keyed:    keyed,
		dirs:     dirs,
		contents: []Record{},
		byID:     map[any]Record{},
	}
}

func (c *Category) Name() string { return c.name }

func (c *Category) Keyed() bool { return c.keyed }

// Contents exposes the current collection for snapshot broadcasts.
// Callers must not mutate it.
func (c *Category) Contents() []Record { return c.contents }

func (c *Category) String() string {
	return fmt.Sprintf("%d %s", len(c.contents), c.name)
}

// candidatePaths lists the storage locations to try, in priority
// order: the system-wide directory first, the local fallback last.
func (c *Category) candidatePaths() []string {
	paths := make([]string, 0, len(c.dirs))
	for _, dir := range c.dirs {
		paths = append(paths, filepath.Join(dir, c.name+".json"))
	}
	return paths
}

// rehash rebuilds the id index from the collection. Called whenever
// the contents are replaced wholesale.
func (c *Category) rehash() {
	if !c.keyed {
		return
	}
	c.byID = make(map[any]Record, len(c.contents))
	for _, rec := range c.contents {
		if id, ok := rec.ID(); ok {
			c.byID[id] = rec
		}
	}
}

// Load reads the category snapshot from the first candidate location
// that opens and parses, and remembers that location for future
// stores. Failing all candidates is not fatal: the category starts
// empty. Transient categories have no storage and load nothing.
func (c *Category) Load() {
	if !c.keyed {
		return
	}
	for _, path := range c.candidatePaths() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[Category] %s: could not open %s: %v", c.name, path, err)
			continue
		}
		var contents []Record
		if err := json.Unmarshal(data, &contents); err != nil {
			log.Printf("[Category] %s: could not parse %s: %v", c.name, path, err)
			continue
		}
		c.contents = contents
		c.rehash()
		c.filename = path
		return
	}
	c.contents = []Record{}
	c.rehash()
}

// Store writes the full collection as a single JSON snapshot. It
// reuses the remembered location when there is one, otherwise tries
// the candidates in order and remembers the first that takes the
// write. A store failure leaves the in-memory state as the only copy;
// the caller decides whether that warrants more than the log line.
func (c *Category) Store() error {
	data, err := json.Marshal(c.contents)
	if err != nil {
		return fmt.Errorf("marshal category %s: %w", c.name, err)
	}
	data = append(data, '\n')

	candidates := c.candidatePaths()
	if c.filename != "" {
		candidates = []string{c.filename}
	}
	for _, path := range candidates {
		if err := os.WriteFile(path, data, 0644); err != nil {
			continue
		}
		c.filename = path
		log.Printf("[Category] stored %s in %s", c.name, path)
		return nil
	}
	err = fmt.Errorf("could not store category %s in any of %v", c.name, candidates)
	log.Printf("[Category] %v", err)
	return err
}

// Apply merges an incoming batch into the category and returns the
// news: the records a broadcast should carry because they are new or
// materially changed.
//
// Transient categories are replaced wholesale and the news is the
// entire new collection. Keyed categories merge per id; an item
// without a usable id is dropped, an unknown id is inserted, a known
// id is merged field by field and contributes news only when some
// field actually differs. A keyed batch that produced news is
// persisted once; a batch with no news triggers no write at all.
func (c *Category) Apply(batch []Record) []Record {
	if !c.keyed {
		c.contents = batch
		return c.contents
	}

	var news []Record
	rejected := 0
	for _, incoming := range batch {
		id, ok := incoming.ID()
		if !ok {
			log.Printf("[Category] %s: dropping item without usable id: %v", c.name, incoming)
			rejected++
			continue
		}
		existing, known := c.byID[id]
		if !known {
			c.contents = append(c.contents, incoming)
			c.byID[id] = incoming
			news = append(news, incoming)
			continue
		}
		if existing.mergeFrom(incoming) {
			news = append(news, existing)
		}
	}
	if rejected > 0 {
		log.Printf("[Category] %s: batch done: %d accepted, %d rejected",
			c.name, len(batch)-rejected, rejected)
	}
	if len(news) > 0 {
		if err := c.Store(); err != nil {
			log.Printf("[Category] %s: keeping state in memory only: %v", c.name, err)
		}
	}
	return news
}
