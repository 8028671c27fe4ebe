package ouroboros

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-cad/internal/config"
	"github.com/i5heu/ouroboros-cad/pkg/storage"
)

// Config configures a document. Persistence is enabled when Path is set or
// InMemory is true; without it Save and Load fail with ErrNoPersistence.
type Config struct {
	// Path is the directory of the snapshot store.
	Path string
	// InMemory keeps the snapshot store in memory, mostly for tests.
	InMemory bool
	// MinimumFreeGB is checked before an on-disk store is opened.
	MinimumFreeGB int
	// Logger is handed to every component. If nil, a logrus default is used.
	Logger *logrus.Logger

	// MaxEntries and MinEntries size the nodes of the spatial index. Zero
	// keeps the index defaults.
	MaxEntries int
	MinEntries int

	// Visibility overrides storage.DefaultVisibility.
	Visibility storage.VisibilityPredicate

	// Workers encode and decode objects during save and load.
	Workers int

	// AutosaveInterval starts autosave right away when positive.
	AutosaveInterval time.Duration
}

// ConfigFrom maps a loaded configuration file onto a document Config.
func ConfigFrom(c config.Config, log *logrus.Logger) Config {
	return Config{
		Path:          c.Storage.Path,
		InMemory:      c.Storage.InMemory,
		MinimumFreeGB: c.Storage.MinimumFreeSpace,
		Logger:        log,
		MaxEntries:    c.Spatial.MaxEntries,
		MinEntries:    c.Spatial.MinEntries,

		AutosaveInterval: c.Autosave.Interval,
	}
}

func (c Config) persistent() bool {
	return c.Path != "" || c.InMemory
}
