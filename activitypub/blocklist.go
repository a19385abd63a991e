package activitypub

import (
	"encoding/csv"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// BlockList is a set of blocked domains, reloaded when the backing CSV
// file changes. A blocked domain also blocks all of its subdomains.
type BlockList struct {
	lock    sync.Mutex
	wg      sync.WaitGroup
	w       *fsnotify.Watcher
	domains map[string]struct{}
}

const blockListReloadDelay = time.Second * 5

func loadBlocklist(path string) (map[string]struct{}, error) {
	blockedDomains := make(map[string]struct{})

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := csv.NewReader(f)
	first := true
	for {
		r, err := c.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		// skip the header row
		if first {
			first = false
			continue
		}

		blockedDomains[strings.ToLower(r[0])] = struct{}{}
	}

	return blockedDomains, nil
}

// NewBlockList loads the blocklist and watches its directory for changes.
func NewBlockList(path string) (*BlockList, error) {
	domains, err := loadBlocklist(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	absPath := filepath.Join(dir, filepath.Base(path))

	b := &BlockList{w: w, domains: domains}

	timer := time.NewTimer(math.MaxInt64)
	timer.Stop()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					timer.Stop()
					return
				}

				if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && event.Name == absPath {
					timer.Reset(blockListReloadDelay)
				}

			case <-timer.C:
				newDomains, err := loadBlocklist(path)
				if err != nil {
					log.Printf("BlockList: failed to reload %s: %v", path, err)
					continue
				}

				// an emptied file is probably mid-rewrite with O_TRUNC
				if len(b.domains) > 0 && len(newDomains) == 0 {
					log.Printf("BlockList: new blocklist is empty, keeping old one")
					continue
				}

				b.lock.Lock()
				b.domains = newDomains
				b.lock.Unlock()
				log.Printf("BlockList: reloaded %s (%d domains)", path, len(newDomains))
			}
		}
	}()

	return b, nil
}

// NewStaticBlockList builds a blocklist from a fixed set of domains,
// without a backing file.
func NewStaticBlockList(domains ...string) *BlockList {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		set[strings.ToLower(d)] = struct{}{}
	}
	return &BlockList{domains: set}
}

// Contains determines if a hostname is blocked, either directly or as a
// subdomain of a blocked domain.
func (b *BlockList) Contains(hostname string) bool {
	hostname = strings.ToLower(hostname)

	b.lock.Lock()
	defer b.lock.Unlock()

	if _, contains := b.domains[hostname]; contains {
		return true
	}
	for blocked := range b.domains {
		if strings.HasSuffix(hostname, "."+blocked) {
			return true
		}
	}
	return false
}

// Close frees resources.
func (b *BlockList) Close() {
	if b.w != nil {
		b.w.Close()
	}
	b.wg.Wait()
}
