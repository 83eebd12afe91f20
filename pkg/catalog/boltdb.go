package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/scaled/pkg/types"
)

var (
	// Bucket names
	bucketServices = []byte("services")
	bucketStages   = []byte("stages")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed catalog
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "scaled.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketServices, bucketStages} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) ListAllServices() ([]*types.Service, error) {
	var services []*types.Service
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		return b.ForEach(func(_, data []byte) error {
			var service types.Service
			if err := json.Unmarshal(data, &service); err != nil {
				return err
			}
			services = append(services, &service)
			return nil
		})
	})
	return services, err
}

func (s *BoltStore) GetService(name string) (*types.Service, error) {
	var service types.Service
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("service not found: %s", name)
		}
		return json.Unmarshal(data, &service)
	})
	if err != nil {
		return nil, err
	}
	return &service, nil
}

func (s *BoltStore) SaveService(service *types.Service) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		data, err := json.Marshal(service)
		if err != nil {
			return err
		}
		return b.Put([]byte(service.Name), data)
	})
}

func (s *BoltStore) DeleteService(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServices).Delete([]byte(name))
	})
}

func (s *BoltStore) SetEnabled(name string, enabled bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("service not found: %s", name)
		}
		var service types.Service
		if err := json.Unmarshal(data, &service); err != nil {
			return err
		}
		service.Enabled = enabled
		data, err := json.Marshal(&service)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
}

// GetStage returns the recorded lifecycle stage, defaulting to off
func (s *BoltStore) GetStage(name string) (types.ServiceStage, error) {
	stage := types.StageOff
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketStages).Get([]byte(name))
		if data != nil {
			stage = types.ServiceStage(data)
		}
		return nil
	})
	return stage, err
}

func (s *BoltStore) SetStage(name string, stage types.ServiceStage) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStages).Put([]byte(name), []byte(stage))
	})
}
