// Package labels resolves facet values to display names from a YAML catalog.
//
// The catalog maps each label kind to value/label pairs:
//
//	nodeType:
//	  service: Service
//	  k8s_cluster: Kubernetes Cluster
//	team:
//	  core: Core Platform
//
// Values missing from the catalog fall back to a humanized form of the raw
// value in the query layer.
package labels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"kbquery/application/ports"
)

// Catalog is the parsed label file
type Catalog map[ports.LabelKind]map[string]string

// CatalogResolver serves labels from a catalog that can be swapped at runtime.
type CatalogResolver struct {
	mu      sync.RWMutex
	catalog Catalog
	path    string
	logger  *zap.Logger
}

var _ ports.LabelResolver = (*CatalogResolver)(nil)

// NewCatalogResolver creates a resolver over catalog
func NewCatalogResolver(catalog Catalog, logger *zap.Logger) *CatalogResolver {
	if catalog == nil {
		catalog = Catalog{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogResolver{catalog: catalog, logger: logger}
}

// LoadCatalogResolver reads path and returns a resolver bound to it
func LoadCatalogResolver(path string, logger *zap.Logger) (*CatalogResolver, error) {
	catalog, err := ReadCatalog(path)
	if err != nil {
		return nil, err
	}
	r := NewCatalogResolver(catalog, logger)
	r.path = path
	return r, nil
}

// ReadCatalog parses a YAML label file
func ReadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label catalog: %w", err)
	}
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("parse label catalog %s: %w", path, err)
	}
	if catalog == nil {
		catalog = Catalog{}
	}
	return catalog, nil
}

// Label returns the catalog label for value
func (r *CatalogResolver) Label(_ context.Context, kind ports.LabelKind, value string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	label, ok := r.catalog[kind][value]
	if !ok || label == "" {
		return "", false
	}
	return label, true
}

// Replace swaps the whole catalog
func (r *CatalogResolver) Replace(catalog Catalog) {
	if catalog == nil {
		catalog = Catalog{}
	}
	r.mu.Lock()
	r.catalog = catalog
	r.mu.Unlock()
}

// Reload re-reads the bound file. A file that fails to parse keeps the
// previous catalog.
func (r *CatalogResolver) Reload() error {
	if r.path == "" {
		return nil
	}
	catalog, err := ReadCatalog(r.path)
	if err != nil {
		r.logger.Warn("Label catalog reload failed, keeping previous catalog",
			zap.String("path", r.path),
			zap.Error(err),
		)
		return err
	}
	r.Replace(catalog)
	r.logger.Info("Label catalog reloaded", zap.String("path", r.path))
	return nil
}

// Watch reloads the catalog whenever its file changes until ctx is done.
// The parent directory is watched so editors that replace the file by
// rename are picked up too.
func (r *CatalogResolver) Watch(ctx context.Context) error {
	if r.path == "" {
		return fmt.Errorf("label catalog has no backing file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	target := filepath.Clean(r.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", target, err)
	}

	go r.watchLoop(ctx, watcher, target)
	return nil
}

func (r *CatalogResolver) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, target string) {
	defer watcher.Close()

	// Debounce bursts of events from a single save
	var debounce *time.Timer
	const debounceDelay = 200 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() { _ = r.Reload() })
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("Label catalog watcher error", zap.Error(err))
		}
	}
}
