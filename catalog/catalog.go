package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/surfmatch/blobstore"
	"github.com/hupe1980/surfmatch/persistence"
	"github.com/hupe1980/surfmatch/resource"
)

const (
	// Root is the key prefix of all catalog blobs.
	Root = "models/"
	// CurrentName is the base name of the pointer blob.
	CurrentName = "CURRENT"
	// Extension is the suffix of model blobs.
	Extension = ".ppf"
)

var (
	// ErrNotFound is returned when a model or version does not exist.
	ErrNotFound = errors.New("catalog: model not found")
	// ErrInvalidName is returned for names that cannot be used as a key segment.
	ErrInvalidName = errors.New("catalog: invalid model name")
)

// Entry describes a published model version.
type Entry struct {
	Name    string
	Version uuid.UUID
	ModelID uuid.UUID
	Size    int64
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCompression sets the compression of published blobs. Default: ZSTD.
func WithCompression(ct persistence.CompressionType) Option {
	return func(c *Catalog) { c.compression = ct }
}

// WithResourceController throttles transfers and accounts decode memory.
func WithResourceController(rc *resource.Controller) Option {
	return func(c *Catalog) { c.rc = rc }
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// Catalog publishes and fetches models. It is safe for concurrent use when
// the underlying store is.
type Catalog struct {
	store       blobstore.BlobStore
	compression persistence.CompressionType
	rc          *resource.Controller
	logger      *slog.Logger
}

// New creates a catalog on top of store.
func New(store blobstore.BlobStore, opts ...Option) *Catalog {
	c := &Catalog{
		store:       store,
		compression: persistence.CompressionZSTD,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateName reports whether name can be used as a model name.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || len(name) > 128 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range name {
		ok := r == '-' || r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

func dir(name string) string {
	return Root + name + "/"
}

func blobName(name string, version uuid.UUID) string {
	return dir(name) + version.String() + Extension
}

func currentName(name string) string {
	return dir(name) + CurrentName
}

// Publish stores m as a new version of name and makes it current.
func (c *Catalog) Publish(ctx context.Context, name string, m *persistence.ModelData) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}
	version, err := uuid.NewV7()
	if err != nil {
		return Entry{}, err
	}
	key := blobName(name, version)

	w, err := c.store.Create(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	n, err := persistence.Encode(resource.NewRateLimitedWriter(ctx, w, c.rc), m, c.compression)
	if err != nil {
		if a, ok := w.(interface{ Abort() error }); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
			_ = c.store.Delete(ctx, key)
		}
		return Entry{}, fmt.Errorf("catalog: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return Entry{}, fmt.Errorf("catalog: write %s: %w", key, err)
	}

	if err := c.store.Put(ctx, currentName(name), []byte(version.String())); err != nil {
		return Entry{}, fmt.Errorf("catalog: update %s: %w", currentName(name), err)
	}

	e := Entry{Name: name, Version: version, ModelID: m.ID, Size: n}
	c.logger.InfoContext(ctx, "model published",
		slog.String("name", name),
		slog.String("version", version.String()),
		slog.Int64("bytes", n),
	)
	return e, nil
}

// Current returns the live version of name.
func (c *Catalog) Current(ctx context.Context, name string) (uuid.UUID, error) {
	if err := ValidateName(name); err != nil {
		return uuid.Nil, err
	}
	blob, err := c.store.Open(ctx, currentName(name))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return uuid.Nil, err
	}
	defer blob.Close()

	data, err := blobstore.ReadAll(ctx, blob)
	if err != nil {
		return uuid.Nil, err
	}
	version, err := uuid.Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return uuid.Nil, fmt.Errorf("catalog: %s: invalid pointer: %w", currentName(name), err)
	}
	return version, nil
}

// Fetch loads the current version of name.
func (c *Catalog) Fetch(ctx context.Context, name string) (*persistence.ModelData, Entry, error) {
	version, err := c.Current(ctx, name)
	if err != nil {
		return nil, Entry{}, err
	}
	return c.FetchVersion(ctx, name, version)
}

// FetchVersion loads a specific version of name.
func (c *Catalog) FetchVersion(ctx context.Context, name string, version uuid.UUID) (*persistence.ModelData, Entry, error) {
	if err := ValidateName(name); err != nil {
		return nil, Entry{}, err
	}
	key := blobName(name, version)
	blob, err := c.store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, Entry{}, fmt.Errorf("%w: %s@%s", ErrNotFound, name, version)
		}
		return nil, Entry{}, err
	}
	defer blob.Close()

	size := blob.Size()
	// Decoded models are charged at twice the blob size.
	reserve := 2 * size
	if err := c.rc.AcquireMemory(ctx, reserve); err != nil {
		return nil, Entry{}, err
	}
	defer c.rc.ReleaseMemory(reserve)

	m, err := c.decode(ctx, blob)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("catalog: %s: %w", key, err)
	}

	c.logger.DebugContext(ctx, "model fetched",
		slog.String("name", name),
		slog.String("version", version.String()),
		slog.Int64("bytes", size),
	)
	return m, Entry{Name: name, Version: version, ModelID: m.ID, Size: size}, nil
}

func (c *Catalog) decode(ctx context.Context, blob blobstore.Blob) (*persistence.ModelData, error) {
	if mb, ok := blob.(blobstore.Mappable); ok {
		data, err := mb.Bytes()
		if err != nil {
			return nil, err
		}
		if err := c.rc.AcquireIO(ctx, len(data)); err != nil {
			return nil, err
		}
		return persistence.DecodeBytes(data)
	}
	if blob.Size() == 0 {
		return persistence.DecodeBytes(nil)
	}
	r, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return persistence.DecodeSized(resource.NewRateLimitedReader(ctx, r, c.rc), blob.Size())
}

// Versions returns the published versions of name in publish order.
func (c *Catalog) Versions(ctx context.Context, name string) ([]uuid.UUID, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	names, err := c.store.List(ctx, dir(name))
	if err != nil {
		return nil, err
	}
	var out []uuid.UUID
	for _, n := range names {
		base := path.Base(n)
		if !strings.HasSuffix(base, Extension) {
			continue
		}
		v, err := uuid.Parse(strings.TrimSuffix(base, Extension))
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Names returns the names of all models with at least one blob.
func (c *Catalog) Names(ctx context.Context) ([]string, error) {
	names, err := c.store.List(ctx, Root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range names {
		rest := strings.TrimPrefix(n, Root)
		i := strings.IndexByte(rest, '/')
		if i <= 0 {
			continue
		}
		model := rest[:i]
		if len(out) == 0 || out[len(out)-1] != model {
			out = append(out, model)
		}
	}
	return out, nil
}

// Delete removes every version of name and its pointer.
func (c *Catalog) Delete(ctx context.Context, name string) error {
	versions, err := c.Versions(ctx, name)
	if err != nil {
		return err
	}
	// Pointer first, so readers never resolve to a deleted blob.
	if err := c.store.Delete(ctx, currentName(name)); err != nil {
		return err
	}
	for _, v := range versions {
		if err := c.store.Delete(ctx, blobName(name, v)); err != nil {
			return err
		}
	}
	c.logger.InfoContext(ctx, "model deleted", slog.String("name", name), slog.Int("versions", len(versions)))
	return nil
}

// Prune deletes all but the newest keep versions of name. The current
// version is always kept.
func (c *Catalog) Prune(ctx context.Context, name string, keep int) (int, error) {
	versions, err := c.Versions(ctx, name)
	if err != nil {
		return 0, err
	}
	current, err := c.Current(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	removed := 0
	for i := 0; i < len(versions)-max(keep, 0); i++ {
		if versions[i] == current {
			continue
		}
		if err := c.store.Delete(ctx, blobName(name, versions[i])); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
