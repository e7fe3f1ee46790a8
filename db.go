package colorcycle

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Record is an image descriptor held in the database
type Record struct {
	ID       int64
	Name     string
	Timeline bool
	Size     int
	Data     []byte
}

// ImageDB caches image descriptors and their thumbnails
type ImageDB struct {
	db *sql.DB
}

// NewImageDB opens or creates the database in file
func NewImageDB(file string) (*ImageDB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS image (id INTEGER PRIMARY KEY NOT NULL, name TEXT NOT NULL UNIQUE, timeline INTEGER NOT NULL, checksum TEXT NOT NULL, data BLOB NOT NULL)"); err != nil {
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS thumbnail (image_id INTEGER NOT NULL UNIQUE, png BLOB NOT NULL, FOREIGN KEY(image_id) REFERENCES image(id) ON DELETE CASCADE)"); err != nil {
		return nil, err
	}

	return &ImageDB{
		db: db,
	}, nil
}

// Close closes the database
func (db *ImageDB) Close() error {
	return db.db.Close()
}

// Put stores the descriptor data under name, replacing any existing data,
// and returns the row id
func (db *ImageDB) Put(name string, timeline bool, data []byte) (int64, error) {
	sum := checksum(data)

	var id int64
	switch err := db.db.QueryRow("SELECT id FROM image WHERE name = ?", name).Scan(&id); err {
	case sql.ErrNoRows:
		result, err := db.db.Exec("INSERT INTO image (name, timeline, checksum, data) VALUES (?, ?, ?, ?)", name, timeline, sum, data)
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	case nil:
		if _, err := db.db.Exec("UPDATE image SET timeline = ?, checksum = ?, data = ? WHERE id = ?", timeline, sum, data, id); err != nil {
			return 0, err
		}
		if _, err := db.db.Exec("DELETE FROM thumbnail WHERE image_id = ?", id); err != nil {
			return 0, err
		}
		return id, nil
	default:
		return 0, err
	}
}

// Get returns the record for name, or nil if there isn't one. A record
// whose data no longer matches its checksum returns ErrCorrupt.
func (db *ImageDB) Get(name string) (*Record, error) {
	r := Record{Name: name}
	var sum string
	switch err := db.db.QueryRow("SELECT id, timeline, checksum, data FROM image WHERE name = ?", name).Scan(&r.ID, &r.Timeline, &sum, &r.Data); err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
		if checksum(r.Data) != sum {
			return nil, fmt.Errorf("%w: \"%s\" has checksum %s", ErrCorrupt, name, sum)
		}
		r.Size = len(r.Data)
		return &r, nil
	default:
		return nil, err
	}
}

// Delete removes name and its thumbnail
func (db *ImageDB) Delete(name string) error {
	if _, err := db.db.Exec("DELETE FROM image WHERE name = ?", name); err != nil {
		return err
	}
	return nil
}

// PutThumbnail stores the encoded thumbnail for the image with row id
func (db *ImageDB) PutThumbnail(id int64, png []byte) error {
	if _, err := db.db.Exec("INSERT OR REPLACE INTO thumbnail (image_id, png) VALUES (?, ?)", id, png); err != nil {
		return err
	}
	return nil
}

// Thumbnail returns the encoded thumbnail for name, or nil if there isn't
// one
func (db *ImageDB) Thumbnail(name string) ([]byte, error) {
	var png []byte
	switch err := db.db.QueryRow("SELECT t.png FROM image AS i JOIN thumbnail AS t ON t.image_id = i.id WHERE i.name = ?", name).Scan(&png); err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
		return png, nil
	default:
		return nil, err
	}
}

// List returns every record ordered by name, without the data
func (db *ImageDB) List() ([]Record, error) {
	rows, err := db.db.Query("SELECT id, name, timeline, length(data) FROM image ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Timeline, &r.Size); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
