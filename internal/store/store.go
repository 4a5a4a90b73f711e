// Package store defines the document-database persistence contract shared by
// every collection in the runtime (agents, sessions, events, guidelines,
// guideline connections, guideline-tool associations, glossary terms, context
// variables, and tool service registrations). Concrete adapters (in-memory,
// MongoDB) implement Database; the rest of the runtime depends only on this
// package's interfaces.
//
// Every collection holds JSON-friendly documents keyed by an "id" field. A
// reserved "metadata" collection per database holds {"version": n} for
// schema evolution, mirroring the teacher's persistence layout.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document lookup by id fails to find a match.
var ErrNotFound = errors.New("item not found")

type (
	// Document is a JSON-friendly record. Callers marshal/unmarshal their own
	// typed structs to/from Document via the Codec helpers below.
	Document map[string]any

	// Database groups the named collections used by the runtime. A single
	// Database instance backs one storage technology (in-memory, Mongo).
	Database interface {
		// Collection returns (creating if necessary) the named collection.
		Collection(ctx context.Context, name string) (Collection, error)
	}

	// Collection is a minimal CRUD + filtered-list contract over JSON
	// documents keyed by "id". Implementations must serialize concurrent
	// writers (spec.md §5: per-collection reader/writer locks; all mutations
	// go through the writer lock).
	Collection interface {
		// Insert adds a new document. Returns an error if "id" is empty or
		// already present.
		Insert(ctx context.Context, doc Document) error
		// Update replaces the document with the given id. Returns ErrNotFound
		// if no such document exists.
		Update(ctx context.Context, id string, doc Document) error
		// Delete removes the document with the given id. Returns ErrNotFound
		// if no such document exists.
		Delete(ctx context.Context, id string) error
		// Find returns the document with the given id, or ErrNotFound.
		Find(ctx context.Context, id string) (Document, error)
		// List returns every document matching filter, in insertion order.
		// A nil or empty Filter matches every document.
		List(ctx context.Context, filter Filter) ([]Document, error)
	}

	// VectorCollection extends Collection with similarity search, used only
	// by the glossary store (spec.md §3 Term, §4.6 is unrelated — glossary
	// terms are indexed by an assembled "name[, synonyms]: description"
	// string and retrieved by semantic proximity to a query).
	VectorCollection interface {
		Collection
		// IndexText (re)computes and stores the embedding for doc["id"] using
		// text as the source string.
		IndexText(ctx context.Context, id string, text string) error
		// SimilaritySearch returns up to k documents whose indexed text is
		// closest to query, most similar first.
		SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error)
	}
)
