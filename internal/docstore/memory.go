package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for local development and tests. It applies the
// same filter limits as the hosted backends.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any

	subMu  sync.Mutex
	subs   map[string]map[int]ChangeFunc
	nextID int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
		subs:        make(map[string]map[int]ChangeFunc),
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return Document{ID: id, Data: copyMap(data)}, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filter Filter, orderBy string, dir Direction) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	s.mu.Lock()
	var docs []Document
	for id, data := range s.collections[collection] {
		if !matches(data, filter) {
			continue
		}
		if orderBy != "" {
			if _, ok := data[orderBy]; !ok {
				continue
			}
		}
		docs = append(docs, Document{ID: id, Data: copyMap(data)})
	}
	s.mu.Unlock()

	sort.Slice(docs, func(i, j int) bool {
		if orderBy != "" {
			a, b := fmt.Sprint(docs[i].Data[orderBy]), fmt.Sprint(docs[j].Data[orderBy])
			if a != b {
				if dir == Desc {
					return a > b
				}
				return a < b
			}
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (s *MemoryStore) Mutate(ctx context.Context, collection, id string, ops ...Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	data, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	for _, op := range ops {
		switch op.Kind {
		case OpAddMember:
			set := toAnySlice(data[op.Field])
			if !containsValue(set, op.Value) {
				set = append(set, op.Value)
			}
			data[op.Field] = set
		case OpRemoveMember:
			set := toAnySlice(data[op.Field])
			kept := set[:0]
			for _, v := range set {
				if v != op.Value {
					kept = append(kept, v)
				}
			}
			data[op.Field] = kept
		case OpSetField:
			data[op.Field] = copyValue(op.Value)
		default:
			s.mu.Unlock()
			return fmt.Errorf("%w: unknown mutation kind %d", ErrInvalidArgument, op.Kind)
		}
	}
	snapshot := Document{ID: id, Data: copyMap(data)}
	s.mu.Unlock()

	s.notify(collection, id, &snapshot)
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]map[string]any)
	}
	stored := copyMap(data)
	s.collections[collection][id] = stored
	snapshot := Document{ID: id, Data: copyMap(stored)}
	s.mu.Unlock()

	s.notify(collection, id, &snapshot)
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection, id string, onChange ChangeFunc) (func(), error) {
	key := collection + "/" + id

	s.subMu.Lock()
	s.nextID++
	subID := s.nextID
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]ChangeFunc)
	}
	s.subs[key][subID] = onChange
	s.subMu.Unlock()

	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		onChange(nil)
	} else {
		onChange(&doc)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs[key], subID)
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
			s.subMu.Unlock()
		})
	}, nil
}

// SubscriberCount reports the number of live subscriptions on a document.
func (s *MemoryStore) SubscriberCount(collection, id string) int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs[collection+"/"+id])
}

func (s *MemoryStore) notify(collection, id string, doc *Document) {
	s.subMu.Lock()
	fns := make([]ChangeFunc, 0, len(s.subs[collection+"/"+id]))
	for _, fn := range s.subs[collection+"/"+id] {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		d := Document{ID: doc.ID, Data: copyMap(doc.Data)}
		fn(&d)
	}
}

func matches(data map[string]any, f Filter) bool {
	v, ok := data[f.Field]
	if !ok {
		return false
	}
	switch f.Op {
	case OpEqual:
		return v == f.Value
	case OpIn:
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, want := range f.Value.([]string) {
			if s == want {
				return true
			}
		}
	}
	return false
}

func containsValue(set []any, v any) bool {
	for _, e := range set {
		if e == v {
			return true
		}
	}
	return false
}

func toAnySlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{}
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		return toAnySlice(append([]string(nil), t...))
	case map[string]any:
		return copyMap(t)
	default:
		return v
	}
}
