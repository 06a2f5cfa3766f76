// internal/blob/store.go
package blob

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	apperrors "quill/internal/errors"
	"quill/shared/utils"
)

// DiskStore provides deduplicated, content-addressed blob storage.
// Section payloads live on the filesystem under aa/rest fan-out paths;
// metadata and reference counts live in Badger.
type DiskStore struct {
	root  string
	db    *badger.DB
	cache *lru.Cache[string, *Blob]
	cm    *compressionManager
	mu    sync.Mutex // serializes refcount read-modify-write
}

// Options configures DiskStore behavior
type Options struct {
	Root        string // Root directory path
	CacheSize   int    // Number of blobs to cache
	Compression CompressionOptions
}

// payload is the on-disk encoding of a blob's sections.
type payload struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
	JS   string `json:"js"`
}

func NewDiskStore(db *badger.DB, opts Options) (*DiskStore, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}

	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	if opts.CacheSize == 0 {
		opts.CacheSize = 256
	}
	cache, err := lru.New[string, *Blob](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	if opts.Compression == (CompressionOptions{}) {
		opts.Compression = DefaultCompressionOptions()
	}
	cm, err := newCompressionManager(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compression manager: %w", err)
	}

	return &DiskStore{
		root:  opts.Root,
		db:    db,
		cache: cache,
		cm:    cm,
	}, nil
}

// Put stores a snapshot and returns its content hash. Identical content
// returns the same id without touching the filesystem again.
func (s *DiskStore) Put(html, css, js string) (string, error) {
	hash := utils.HashSections(html, css, js)

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.exists(hash)
	if err != nil {
		return "", fmt.Errorf("checking existence: %w", err)
	}
	if exists {
		return hash, nil
	}

	data, err := json.Marshal(payload{HTML: html, CSS: css, JS: js})
	if err != nil {
		return "", fmt.Errorf("encoding blob: %w", err)
	}

	stored, compressed, err := s.cm.compress(data)
	if err != nil {
		return "", fmt.Errorf("compressing blob: %w", err)
	}

	contentPath := s.contentPath(hash)
	if err := os.MkdirAll(filepath.Dir(contentPath), 0755); err != nil {
		return "", fmt.Errorf("creating content directory: %w", err)
	}
	if err := os.WriteFile(contentPath, stored, 0644); err != nil {
		return "", fmt.Errorf("writing content file: %w", err)
	}

	now := time.Now()
	meta := Meta{
		Hash:       hash,
		Size:       int64(len(data)),
		RefCount:   0,
		Compressed: compressed,
		CreatedAt:  now,
		AccessedAt: now,
	}
	if err := s.storeMeta(meta); err != nil {
		os.Remove(contentPath)
		return "", fmt.Errorf("storing metadata: %w", err)
	}

	s.cache.Add(hash, &Blob{ID: hash, HTML: html, CSS: css, JS: js, CreatedAt: now})

	return hash, nil
}

// Get retrieves a blob by content hash.
func (s *DiskStore) Get(id string) (*Blob, error) {
	if b, ok := s.cache.Get(id); ok {
		return b, nil
	}

	meta, err := s.getMeta(id)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(s.contentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFound("blob not found: %s", id)
		}
		return nil, fmt.Errorf("reading content: %w", err)
	}

	if meta.Compressed {
		content, err = s.cm.decompress(content)
		if err != nil {
			return nil, err
		}
	}

	var p payload
	if err := json.Unmarshal(content, &p); err != nil {
		return nil, fmt.Errorf("decoding blob: %w", err)
	}

	// Verify hash
	if utils.HashSections(p.HTML, p.CSS, p.JS) != id {
		return nil, fmt.Errorf("blob hash mismatch: %s", id)
	}

	b := &Blob{ID: id, HTML: p.HTML, CSS: p.CSS, JS: p.JS, CreatedAt: meta.CreatedAt}
	s.cache.Add(id, b)

	return b, nil
}

// Exists checks whether content for the id is stored.
func (s *DiskStore) Exists(id string) (bool, error) {
	if s.cache.Contains(id) {
		return true, nil
	}
	return s.exists(id)
}

// AddRef records one more commit referencing the blob.
func (s *DiskStore) AddRef(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.getMeta(id)
	if err != nil {
		return err
	}
	meta.RefCount++
	return s.storeMeta(*meta)
}

// Release decrements the reference count and removes content once
// nothing references it.
func (s *DiskStore) Release(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.getMeta(id)
	if err != nil {
		return err
	}

	if meta.RefCount > 0 {
		meta.RefCount--
	}
	if meta.RefCount > 0 {
		return s.storeMeta(*meta)
	}

	if err := os.Remove(s.contentPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing content file: %w", err)
	}
	if err := s.deleteMeta(id); err != nil {
		return err
	}
	s.cache.Remove(id)
	return nil
}

func (s *DiskStore) contentPath(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

func (s *DiskStore) metaKey(hash string) []byte {
	return []byte("blobmeta:" + hash)
}

func (s *DiskStore) exists(hash string) (bool, error) {
	_, err := s.getMeta(hash)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *DiskStore) getMeta(hash string) (*Meta, error) {
	var meta Meta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.metaKey(hash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, apperrors.NotFound("blob not found: %s", hash)
	}
	if err != nil {
		return nil, fmt.Errorf("getting blob metadata: %w", err)
	}
	return &meta, nil
}

func (s *DiskStore) storeMeta(meta Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.metaKey(meta.Hash), data)
	})
}

func (s *DiskStore) deleteMeta(hash string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.metaKey(hash))
	})
}
