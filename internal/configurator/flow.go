// Package configurator drives a visitor through building one banner: choose
// size and material, attach artwork, then add the result to the cart.
package configurator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vbonduro/bannerfront/internal/artwork"
	"github.com/vbonduro/bannerfront/internal/cart"
	"github.com/vbonduro/bannerfront/internal/domain"
	"github.com/vbonduro/bannerfront/internal/pricing"
)

type State string

const (
	Configuring State = "configuring"
	Uploading   State = "uploading"
	Committed   State = "committed"
)

var (
	ErrInvalidTransition = errors.New("action not allowed in the current step")
	ErrItemNotFound      = errors.New("cart item not found")
	ErrNoFile            = errors.New("no file attached")
)

// Flow is one visitor's configurator. It is safe for concurrent use.
type Flow struct {
	mu      sync.Mutex
	cart    *cart.Store
	files   artwork.Store
	maxSize int64

	state  State
	config domain.BannerConfig
	// editID is the cart line being edited, if any.
	editID string
	file   *artwork.Handle
}

func New(c *cart.Store, files artwork.Store, maxSize int64) *Flow {
	f := &Flow{cart: c, files: files, maxSize: maxSize}
	f.reset()
	return f
}

// Snapshot is a read-only view of the flow for rendering.
type Snapshot struct {
	State    State
	Config   domain.BannerConfig
	EditID   string
	FileName string
	Estimate string
}

func (s Snapshot) Editing() bool { return s.EditID != "" }

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Snapshot{
		State:    f.state,
		Config:   f.config,
		EditID:   f.editID,
		Estimate: pricing.Estimate(f.config).StringFixed(2),
	}
	if f.file != nil {
		s.FileName = f.file.Name
	}
	return s
}

// Start discards any working state and begins a new banner.
func (f *Flow) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
}

// Edit pre-seeds the flow from an existing cart line. A line that still has
// its artwork starts at the upload step so the file can be kept.
func (f *Flow) Edit(itemID string) error {
	item, ok := f.cart.Item(itemID)
	if !ok {
		return ErrItemNotFound
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
	f.editID = item.ID
	f.config = item.Config
	if item.File != nil {
		file := *item.File
		f.file = &file
		f.state = Uploading
	}
	return nil
}

// SubmitConfig accepts the banner configuration and moves on to the upload
// step. Invalid configurations leave the flow unchanged.
func (f *Flow) SubmitConfig(cfg domain.BannerConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Configuring {
		return ErrInvalidTransition
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	f.config = cfg
	f.state = Uploading
	return nil
}

// Back returns from the upload step to configuration, keeping the values
// entered so far.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Uploading {
		return ErrInvalidTransition
	}
	f.state = Configuring
	return nil
}

// SelectFile validates and stores the artwork, then commits the banner to
// the cart. A rejected file leaves the flow at the upload step.
func (f *Flow) SelectFile(ctx context.Context, name string, data []byte) (cart.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Uploading {
		return cart.Item{}, ErrInvalidTransition
	}
	mime, err := artwork.Validate(data, f.maxSize)
	if err != nil {
		return cart.Item{}, err
	}

	key, err := f.files.Save(ctx, filePrefix(name), mime, bytes.NewReader(data))
	if err != nil {
		return cart.Item{}, fmt.Errorf("failed to store artwork: %w", err)
	}
	handle := &artwork.Handle{Key: key, Name: displayName(name), MimeType: mime, Size: int64(len(data))}
	return f.commit(ctx, handle), nil
}

// KeepFile commits an edited line with the artwork it already had.
func (f *Flow) KeepFile(ctx context.Context) (cart.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Uploading {
		return cart.Item{}, ErrInvalidTransition
	}
	if f.file == nil {
		return cart.Item{}, ErrNoFile
	}
	return f.commit(ctx, f.file), nil
}

func (f *Flow) commit(ctx context.Context, file *artwork.Handle) cart.Item {
	price := pricing.Estimate(f.config)

	var item cart.Item
	if f.editID != "" {
		item = f.cart.ReplaceItem(ctx, f.editID, f.config, file, price)
	} else {
		item = f.cart.AddItem(ctx, f.config, file, price)
	}

	f.reset()
	f.state = Committed
	return item
}

func (f *Flow) reset() {
	f.state = Configuring
	f.config = domain.DefaultBannerConfig()
	f.editID = ""
	f.file = nil
}

// displayName strips any client-side directory from an uploaded file name.
func displayName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "artwork"
	}
	return name
}

// filePrefix derives a storage-safe prefix from an uploaded file name.
func filePrefix(name string) string {
	base := strings.TrimSuffix(displayName(name), filepath.Ext(name))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		if b.Len() >= 40 {
			break
		}
	}
	if b.Len() == 0 {
		return "artwork"
	}
	return b.String()
}
