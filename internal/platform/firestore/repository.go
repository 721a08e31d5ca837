package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Entity pairs a decoded document with its Firestore metadata.
type Entity[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// WriteResult reports the commit timestamp of a mutation.
type WriteResult struct {
	UpdateTime time.Time
}

// DecodeFunc hydrates the typed entity from a document snapshot.
type DecodeFunc[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// EncodeFunc serialises the typed entity before persistence.
type EncodeFunc[T any] func(value T) (any, error)

// QueryFunc shapes a collection query before execution.
type QueryFunc func(query firestore.Query) firestore.Query

// Collection wraps typed access to a single Firestore collection.
type Collection[T any] struct {
	provider *Provider
	name     string
	encode   EncodeFunc[T]
	decode   DecodeFunc[T]
}

// NewCollection binds a typed Collection to the named Firestore collection.
// When encode or decode are nil the native struct mapping is used.
func NewCollection[T any](provider *Provider, name string, encode EncodeFunc[T], decode DecodeFunc[T]) *Collection[T] {
	if encode == nil {
		encode = func(value T) (any, error) { return value, nil }
	}
	if decode == nil {
		decode = func(snap *firestore.DocumentSnapshot) (T, error) {
			var target T
			if err := snap.DataTo(&target); err != nil {
				return target, err
			}
			return target, nil
		}
	}
	return &Collection[T]{
		provider: provider,
		name:     strings.TrimSpace(name),
		encode:   encode,
		decode:   decode,
	}
}

// Set upserts the value under the given document ID.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) (WriteResult, error) {
	doc, err := c.doc(ctx, id)
	if err != nil {
		return WriteResult{}, err
	}

	payload, err := c.encode(value)
	if err != nil {
		return WriteResult{}, fmt.Errorf("firestore: encode %s/%s: %w", c.name, id, err)
	}

	result, err := doc.Set(ctx, payload)
	if err != nil {
		return WriteResult{}, WrapError(c.op("set"), err)
	}
	return WriteResult{UpdateTime: result.UpdateTime}, nil
}

// Update applies field-level updates to an existing document. The document
// must exist; updating a missing document surfaces a not-found error.
func (c *Collection[T]) Update(ctx context.Context, id string, updates []firestore.Update) (WriteResult, error) {
	doc, err := c.doc(ctx, id)
	if err != nil {
		return WriteResult{}, err
	}
	result, err := doc.Update(ctx, updates)
	if err != nil {
		return WriteResult{}, WrapError(c.op("update"), err)
	}
	return WriteResult{UpdateTime: result.UpdateTime}, nil
}

// Get fetches and decodes a single document by ID.
func (c *Collection[T]) Get(ctx context.Context, id string) (Entity[T], error) {
	doc, err := c.doc(ctx, id)
	if err != nil {
		return Entity[T]{}, err
	}

	snap, err := doc.Get(ctx)
	if err != nil {
		return Entity[T]{}, WrapError(c.op("get"), err)
	}
	return c.decodeSnapshot(snap)
}

// GetAll fetches the given document IDs in a single batch. Missing documents
// are skipped rather than reported as errors; callers compare the returned
// set against the requested IDs when absence matters.
func (c *Collection[T]) GetAll(ctx context.Context, ids []string) ([]Entity[T], error) {
	if len(ids) == 0 {
		return nil, nil
	}

	coll, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			return nil, WrapError(c.op("getall"), errors.New("firestore: document id is required"))
		}
		refs = append(refs, coll.Doc(trimmed))
	}

	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, WrapError(c.op("getall"), err)
	}

	entities := make([]Entity[T], 0, len(snaps))
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		entity, err := c.decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// Query runs a shaped collection query and decodes every matching document.
func (c *Collection[T]) Query(ctx context.Context, shape QueryFunc) ([]Entity[T], error) {
	coll, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if shape != nil {
		query = shape(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var entities []Entity[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		entity, err := c.decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// Exists reports whether a document with the given ID is present.
func (c *Collection[T]) Exists(ctx context.Context, id string) (bool, error) {
	doc, err := c.doc(ctx, id)
	if err != nil {
		return false, err
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, WrapError(c.op("exists"), err)
	}
	return snap.Exists(), nil
}

func (c *Collection[T]) decodeSnapshot(snap *firestore.DocumentSnapshot) (Entity[T], error) {
	data, err := c.decode(snap)
	if err != nil {
		return Entity[T]{}, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
	}
	return Entity[T]{
		ID:         snap.Ref.ID,
		Data:       data,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}

func (c *Collection[T]) ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError(c.op("collection"), errors.New("firestore: provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError(c.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T]) doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(strings.TrimSpace(id)), nil
}

func (c *Collection[T]) op(action string) string {
	name := "firestore"
	if c != nil && c.name != "" {
		name = c.name
	}
	return name + "." + action
}
