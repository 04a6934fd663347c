package memory

import (
	"container/list"

	"hybridstream/internal/domain"
)

// payloadCache is a byte-bounded LRU over segment payloads. Not safe for
// concurrent use; the Backend serializes access.
type payloadCache struct {
	entries  map[domain.SegmentID]*cacheEntry
	lru      *list.List
	maxBytes int64
	curBytes int64
}

type cacheEntry struct {
	id      domain.SegmentID
	payload []byte
	elem    *list.Element
}

func newPayloadCache(maxBytes int64) *payloadCache {
	return &payloadCache{
		entries:  make(map[domain.SegmentID]*cacheEntry),
		lru:      list.New(),
		maxBytes: maxBytes,
	}
}

func (c *payloadCache) put(id domain.SegmentID, payload []byte) {
	if old, ok := c.entries[id]; ok {
		c.curBytes -= int64(len(old.payload))
		c.lru.Remove(old.elem)
		delete(c.entries, id)
	}
	if int64(len(payload)) > c.maxBytes {
		return
	}
	entry := &cacheEntry{id: id, payload: payload}
	entry.elem = c.lru.PushFront(entry)
	c.entries[id] = entry
	c.curBytes += int64(len(payload))
	c.evict()
}

// get returns the payload and marks it most recently used.
func (c *payloadCache) get(id domain.SegmentID) ([]byte, bool) {
	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(entry.elem)
	return entry.payload, true
}

// peek returns the payload without touching recency.
func (c *payloadCache) peek(id domain.SegmentID) ([]byte, bool) {
	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return entry.payload, true
}

func (c *payloadCache) evict() {
	for c.curBytes > c.maxBytes {
		back := c.lru.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*cacheEntry)
		c.lru.Remove(back)
		delete(c.entries, entry.id)
		c.curBytes -= int64(len(entry.payload))
	}
}

func (c *payloadCache) clear() {
	c.entries = make(map[domain.SegmentID]*cacheEntry)
	c.lru.Init()
	c.curBytes = 0
}
