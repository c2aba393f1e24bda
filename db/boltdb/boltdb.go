// Copyright 2019 The go-ultiledger Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package boltdb

import (
	"time"

	"github.com/boltdb/bolt"

	"github.com/ultiledger/go-ultiledger/db"
)

type boltdb struct {
	db *bolt.DB
}

// New opens (or creates) a boltdb file at path. It panics if the
// database cannot be opened, failing fast at startup.
func New(path string) db.Database {
	bt, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		panic(err)
	}
	return &boltdb{db: bt}
}

func (bt *boltdb) CreateBucket(name string) error {
	return bt.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
}

func (bt *boltdb) Put(bucket string, key, value []byte) error {
	return bt.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put(key, value)
	})
}

func (bt *boltdb) Get(bucket string, key []byte) ([]byte, bool) {
	var val []byte
	bt.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucket)).Get(key)
		if v != nil {
			val = append([]byte{}, v...)
		}
		return nil
	})
	return val, val != nil
}

// GetAll returns every key/value pair in bucket, used on startup to
// replay persisted last-envelopes for every slot back into that slot's
// BallotState.
func (bt *boltdb) GetAll(bucket string) (map[string][]byte, error) {
	vals := make(map[string][]byte)
	err := bt.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, v []byte) error {
			vals[string(k)] = append([]byte{}, v...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return vals, nil
}

func (bt *boltdb) Close() error {
	return bt.db.Close()
}
