package geo

import (
	"container/list"
	"os"
	"sync"
	"time"

	geojson "github.com/paulmach/go.geojson"
)

// fileVersion identifies one revision of a boundary file on disk.
type fileVersion struct {
	modTime time.Time
	size    int64
}

func versionOf(info os.FileInfo) fileVersion {
	return fileVersion{modTime: info.ModTime(), size: info.Size()}
}

// lookup is the outcome of a cache lookup, used as the metric label.
type lookup string

const (
	lookupHit   lookup = "hit"
	lookupMiss  lookup = "miss"
	lookupStale lookup = "stale"
)

type parsedFile struct {
	path       string
	version    fileVersion
	collection *geojson.FeatureCollection
}

// boundaryCache keeps the most recently used parsed boundary files, one entry
// per path. An entry whose file changed on disk is dropped on lookup.
type boundaryCache struct {
	maxFiles int

	mu    sync.Mutex
	order *list.List // front is most recently used
	files map[string]*list.Element
}

func newBoundaryCache(maxFiles int) *boundaryCache {
	if maxFiles < 1 {
		maxFiles = 1
	}
	return &boundaryCache{
		maxFiles: maxFiles,
		order:    list.New(),
		files:    make(map[string]*list.Element),
	}
}

func (c *boundaryCache) get(path string, v fileVersion) (*geojson.FeatureCollection, lookup) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.files[path]
	if !ok {
		return nil, lookupMiss
	}
	pf := el.Value.(*parsedFile)
	if !pf.version.modTime.Equal(v.modTime) || pf.version.size != v.size {
		c.order.Remove(el)
		delete(c.files, path)
		return nil, lookupStale
	}
	c.order.MoveToFront(el)
	return pf.collection, lookupHit
}

func (c *boundaryCache) put(path string, v fileVersion, fc *geojson.FeatureCollection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.files[path]; ok {
		el.Value = &parsedFile{path: path, version: v, collection: fc}
		c.order.MoveToFront(el)
		return
	}
	c.files[path] = c.order.PushFront(&parsedFile{path: path, version: v, collection: fc})

	for c.order.Len() > c.maxFiles {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.files, oldest.Value.(*parsedFile).path)
	}
}

func (c *boundaryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
