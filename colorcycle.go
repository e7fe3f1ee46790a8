/*
Package colorcycle is a library for animating palette cycling images.

An Engine animates a single indexed image, rotating ranges of its palette
over time and rendering each frame for any number of subscribers. A Library
finds images either in its local database or by fetching them, and keeps
the database stocked by importing descriptor files or preloading from a
catalog.
*/
package colorcycle

import (
	"errors"
	"io/ioutil"
	"log"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when an image is neither cached nor fetchable
	ErrNotFound = errors.New("colorcycle: image not found")
	// ErrDownloading is returned when the image is already being fetched
	ErrDownloading = errors.New("colorcycle: image is already downloading")
	// ErrCorrupt is returned when cached data fails its checksum
	ErrCorrupt = errors.New("colorcycle: corrupt image data")
)

// Library is a cache of images backed by a database and a Fetcher
type Library struct {
	db      *ImageDB
	fetcher Fetcher
	logger  *log.Logger

	mu          sync.Mutex
	downloading map[string]struct{}

	now func() time.Time
}

// New opens the database in dbFile. fetcher may be nil, in which case only
// images already in the database can be loaded.
func New(dbFile string, fetcher Fetcher, logger *log.Logger) (*Library, error) {
	db, err := NewImageDB(dbFile)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}

	return &Library{
		db:          db,
		fetcher:     fetcher,
		logger:      logger,
		downloading: make(map[string]struct{}),
		now:         time.Now,
	}, nil
}

// Close closes the database
func (l *Library) Close() error {
	return l.db.Close()
}

// List returns the images in the database
func (l *Library) List() ([]Record, error) {
	return l.db.List()
}

// Thumbnail returns the PNG thumbnail for the image name
func (l *Library) Thumbnail(name string) ([]byte, error) {
	b, err := l.db.Thumbnail(name)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}
