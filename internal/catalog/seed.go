package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/repository"
)

//go:embed sample_books.json
var sampleBooks []byte

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SampleBooks returns the starter collection shipped with the binary.
func SampleBooks() ([]NewBook, error) {
	var books []NewBook
	if err := json.Unmarshal(sampleBooks, &books); err != nil {
		return nil, fmt.Errorf("decode sample books: %w", err)
	}
	return books, nil
}

// ReadBooks decodes a JSON array of books.
func ReadBooks(r io.Reader) ([]NewBook, error) {
	var books []NewBook
	if err := json.NewDecoder(r).Decode(&books); err != nil {
		return nil, fmt.Errorf("decode books: %w", err)
	}
	return books, nil
}

// Seed inserts every book not already present, matched by title and
// author. Running it twice inserts nothing the second time.
func (s *Service) Seed(ctx context.Context, books []NewBook) (int, error) {
	inserted := 0
	for _, in := range books {
		_, err := s.store.FindBookByTitleAuthor(ctx, strings.TrimSpace(in.Title), strings.TrimSpace(in.Author))
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return inserted, fmt.Errorf("seed %q: %w", in.Title, err)
		}
		if _, err := s.Create(ctx, in); err != nil {
			return inserted, fmt.Errorf("seed %q: %w", in.Title, err)
		}
		inserted++
	}
	s.logger.Info("catalog seeded", zap.Int("inserted", inserted), zap.Int("skipped", len(books)-inserted))
	return inserted, nil
}
