// Package tfrecord appends framed records round-robin across a fixed set of
// shard files. Each record is framed the way TensorFlow record files are:
// little-endian payload length, masked CRC32-C of the length, the payload,
// masked CRC32-C of the payload.
package tfrecord

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ShardSet holds the open handles of one sharded output file. All shards
// are opened together and must be closed together, whatever happens in
// between.
type ShardSet struct {
	prefix string
	files  []*os.File
}

// OpenShards creates numShards files named <prefix>-%05d-of-%05d. Either
// every shard opens or none stays open.
func OpenShards(prefix string, numShards int) (*ShardSet, error) {
	if numShards <= 0 {
		return nil, fmt.Errorf("numShards must be positive, got %d", numShards)
	}

	s := &ShardSet{prefix: prefix, files: make([]*os.File, 0, numShards)}
	for i := 0; i < numShards; i++ {
		f, err := os.Create(ShardPath(prefix, i, numShards))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.files = append(s.files, f)
	}

	return s, nil
}

// ShardPath names shard i of n under the given prefix.
func ShardPath(prefix string, i, n int) string {
	return fmt.Sprintf("%s-%05d-of-%05d", prefix, i, n)
}

// NumShards returns the size of the set.
func (s *ShardSet) NumShards() int {
	return len(s.files)
}

// Write serializes v and appends it to shard idx mod numShards, so that
// enumeration order alone decides the distribution.
func (s *ShardSet) Write(v interface{}, idx int) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return s.writeFrame(s.files[idx%len(s.files)], payload)
}

// Close closes every shard and reports the first failure. Safe to call on a
// partially opened set.
func (s *ShardSet) Close() error {
	var errs []error
	for _, f := range s.files {
		if f != nil {
			errs = append(errs, f.Close())
		}
	}
	s.files = nil

	return errors.Join(errs...)
}

func (s *ShardSet) writeFrame(f *os.File, payload []byte) error {
	var hdr [12]byte
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(len(payload)))
	binary.LittleEndian.PutUint32(hdr[8:12], maskedCRC(hdr[0:8]))
	if _, err := f.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := f.Write(payload); err != nil {
		return err
	}

	var ftr [4]byte
	binary.LittleEndian.PutUint32(ftr[:], maskedCRC(payload))
	_, err := f.Write(ftr[:])
	return err
}

// maskedCRC applies the record-file CRC mask so that CRCs stored inside
// checksummed data do not collide with themselves.
func maskedCRC(b []byte) uint32 {
	c := crc32.Checksum(b, castagnoli)
	return ((c >> 15) | (c << 17)) + 0xa282ead8
}
