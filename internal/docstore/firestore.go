package docstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements Store on Cloud Firestore. Set deltas map to
// firestore.ArrayUnion / firestore.ArrayRemove so concurrent writers never clobber
// each other's members.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return Document{}, classifyFirestoreError(fmt.Sprintf("get %s/%s", collection, id), err)
	}
	return Document{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

func (s *FirestoreStore) Query(ctx context.Context, collection string, filter Filter, orderBy string, dir Direction) ([]Document, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	q := s.client.Collection(collection).Where(filter.Field, filter.Op, filter.Value)
	if orderBy != "" {
		fsDir := firestore.Asc
		if dir == Desc {
			fsDir = firestore.Desc
		}
		q = q.OrderBy(orderBy, fsDir)
	}

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, classifyFirestoreError(fmt.Sprintf("query %s where %s %s", collection, filter.Field, filter.Op), err)
	}

	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return docs, nil
}

func (s *FirestoreStore) Mutate(ctx context.Context, collection, id string, ops ...Mutation) error {
	updates := make([]firestore.Update, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case OpAddMember:
			updates = append(updates, firestore.Update{Path: op.Field, Value: firestore.ArrayUnion(op.Value)})
		case OpRemoveMember:
			updates = append(updates, firestore.Update{Path: op.Field, Value: firestore.ArrayRemove(op.Value)})
		case OpSetField:
			updates = append(updates, firestore.Update{Path: op.Field, Value: op.Value})
		default:
			return fmt.Errorf("%w: unknown mutation kind %d", ErrInvalidArgument, op.Kind)
		}
	}

	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		return classifyFirestoreError(fmt.Sprintf("update %s/%s", collection, id), err)
	}
	return nil
}

func (s *FirestoreStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, data)
	if err != nil {
		return "", classifyFirestoreError("add to "+collection, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, data); err != nil {
		return classifyFirestoreError(fmt.Sprintf("set %s/%s", collection, id), err)
	}
	return nil
}

// Subscribe runs a snapshot listener until unsubscribe is called or ctx ends.
func (s *FirestoreStore) Subscribe(ctx context.Context, collection, id string, onChange ChangeFunc) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	iter := s.client.Collection(collection).Doc(id).Snapshots(subCtx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			snap, err := iter.Next()
			if err != nil {
				if !errors.Is(err, iterator.Done) && status.Code(err) != codes.Canceled && !errors.Is(err, context.Canceled) {
					log.Printf("[Firestore] Subscribe %s/%s stopped: %v", collection, id, err)
				}
				return
			}
			if !snap.Exists() {
				onChange(nil)
				continue
			}
			onChange(&Document{ID: snap.Ref.ID, Data: snap.Data()})
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			iter.Stop()
			<-done
		})
	}, nil
}

func classifyFirestoreError(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	case codes.InvalidArgument, codes.FailedPrecondition:
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidArgument, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
