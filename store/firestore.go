package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCollection is the Firestore collection holding slots.
const DefaultCollection = "badge_slots"

// FirestoreStore is a Firestore-backed implementation of SlotStore. Each
// slot is one document keyed by the slot key.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a FirestoreStore using the given client. An
// empty collection selects DefaultCollection.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreStore{
		client:     client,
		collection: collection,
	}
}

func (s *FirestoreStore) docRef(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(key)
}

func (s *FirestoreStore) Get(ctx context.Context, key string) ([]byte, error) {
	snap, err := s.docRef(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("slot %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	data, ok := snap.Data()["data"].([]byte)
	if !ok {
		return nil, fmt.Errorf("slot %q: invalid data field", key)
	}
	return data, nil
}

func (s *FirestoreStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.docRef(key).Set(ctx, map[string]interface{}{
		"data":      data,
		"size":      len(data),
		"version":   firestore.Increment(1),
		"updatedAt": time.Now(),
	}, firestore.MergeAll)
	return err
}

func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	// Delete on a missing document succeeds, so check first.
	if _, err := s.docRef(key).Get(ctx); status.Code(err) == codes.NotFound {
		return fmt.Errorf("slot %q: %w", key, ErrNotFound)
	} else if err != nil {
		return err
	}
	_, err := s.docRef(key).Delete(ctx)
	return err
}

func snapshotToSlotInfo(snap *firestore.DocumentSnapshot) SlotInfo {
	data := snap.Data()
	size, _ := data["size"].(int64)
	version, _ := data["version"].(int64)
	updatedAt, _ := data["updatedAt"].(time.Time)
	return SlotInfo{
		Key:       snap.Ref.ID,
		Size:      int(size),
		Version:   int(version),
		UpdatedAt: updatedAt,
	}
}

func (s *FirestoreStore) List(ctx context.Context) ([]SlotInfo, error) {
	iter := s.client.Collection(s.collection).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var result []SlotInfo
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		result = append(result, snapshotToSlotInfo(snap))
	}
	return result, nil
}
