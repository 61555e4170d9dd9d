// Package output persists extracted records as files.
package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/scraper"
	"github.com/zvonler/threadgrab/utils"
	"go.uber.org/zap"
)

// Sink receives each thread as soon as it has been extracted.
type Sink interface {
	Persist(origin string, t model.Thread) error
}

// Encode renders v as indented JSON without HTML escaping. The encoding
// of a value never varies, so unchanged input gives identical bytes.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON writes v to path, creating parent directories as needed.
func WriteJSON(path string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", model.ErrPersistence, path, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: %v", model.ErrPersistence, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return nil
}

// WriteURLList writes one URL per line.
func WriteURLList(path string, topics []model.Topic) error {
	fd, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	defer fd.Close()

	w := bufio.NewWriter(fd)
	for _, topic := range topics {
		fmt.Fprintln(w, topic.URL)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return nil
}

func WriteSummary(path string, threads []model.Thread) error {
	return WriteJSON(path, model.NewSummary(threads))
}

// JSONDir writes every thread to its own file below Dir.
type JSONDir struct {
	Dir       string
	Separator string
	log       *zap.Logger
}

func NewJSONDir(dir, separator string, log *zap.Logger) (*JSONDir, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JSONDir{Dir: dir, Separator: separator, log: log}, nil
}

// Filename is "<sanitized title>_<thread id>.json".
func (d *JSONDir) Filename(t model.Thread) string {
	title := utils.SanitizeFilename(t.TitleOr("untitled"))
	id := scraper.ThreadID(t.URL, d.Separator)
	if id == "" {
		id = "thread"
	}
	return fmt.Sprintf("%s_%s.json", title, utils.SanitizeFilename(id))
}

func (d *JSONDir) Persist(origin string, t model.Thread) error {
	path := filepath.Join(d.Dir, d.Filename(t))
	if err := WriteJSON(path, t); err != nil {
		return err
	}
	d.log.Info("Saved thread",
		zap.String("path", path),
		zap.Int("posts", len(t.Posts)))
	return nil
}

func (d *JSONDir) SummaryPath() string {
	return filepath.Join(d.Dir, "summary.json")
}

// Multi persists to every sink, continuing past failures. The first error
// is returned.
type Multi []Sink

func (m Multi) Persist(origin string, t model.Thread) error {
	var first error
	for _, sink := range m {
		if err := sink.Persist(origin, t); err != nil && first == nil {
			first = err
		}
	}
	return first
}
