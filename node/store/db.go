package store

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"

	"basalt.dev/node/consensus"
)

// The five key families of the chain database. All keys are 32-byte block
// hashes except meta, which uses the literal key "head".
var (
	bucketBlocks   = []byte("blocks_by_hash")
	bucketHeights  = []byte("height_by_hash")
	bucketChildren = []byte("children_by_parent")
	bucketWork     = []byte("work_by_hash")
	bucketMeta     = []byte("meta")

	metaHeadKey = []byte("head")
)

const blockCacheSize = 256

// DB is the bbolt-backed ChainStore. Every PutBlock runs as a single bbolt
// Update transaction, so the block bytes, height, child link, work record
// and head either all become visible or none do.
type DB struct {
	db         *bolt.DB
	blockCache *lru.Cache[[32]byte, []byte]
}

var _ ChainStore = (*DB)(nil)

// Open opens or creates the chain database at path.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketBlocks, bucketHeights, bucketChildren, bucketWork, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}
	cache, err := lru.New[[32]byte, []byte](blockCacheSize)
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return &DB{db: bdb, blockCache: cache}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *DB) PutBlock(block *consensus.Block) error {
	if block == nil {
		return fmt.Errorf("store: nil block")
	}
	raw, err := consensus.BlockBytes(block)
	if err != nil {
		return err
	}
	hash := consensus.BlockHash(block.Header)
	header := block.Header

	err = d.db.Update(func(tx *bolt.Tx) error {
		workBucket := tx.Bucket(bucketWork)

		parentWork, err := parentWorkOrZero(func(p [32]byte) (*big.Int, bool, error) {
			v := workBucket.Get(p[:])
			if v == nil {
				return nil, false, nil
			}
			w, err := decodeWork(v)
			return w, err == nil, err
		}, header.ParentHash)
		if err != nil {
			return err
		}
		total := new(big.Int).Add(parentWork, consensus.BlockWork(header))
		workBytes, err := encodeWork(total)
		if err != nil {
			return err
		}

		if err := tx.Bucket(bucketBlocks).Put(hash[:], raw); err != nil {
			return err
		}
		var heightBytes [8]byte
		putU64be(heightBytes[:], header.Height)
		if err := tx.Bucket(bucketHeights).Put(hash[:], heightBytes[:]); err != nil {
			return err
		}
		childBucket := tx.Bucket(bucketChildren)
		list := childBucket.Get(header.ParentHash[:])
		if !childListContains(list, hash) {
			next := make([]byte, 0, len(list)+32)
			next = append(next, list...)
			next = append(next, hash[:]...)
			if err := childBucket.Put(header.ParentHash[:], next); err != nil {
				return err
			}
		}
		if err := workBucket.Put(hash[:], workBytes); err != nil {
			return err
		}

		meta := tx.Bucket(bucketMeta)
		curHead := meta.Get(metaHeadKey)
		if curHead == nil {
			return meta.Put(metaHeadKey, hash[:])
		}
		curWorkRaw := workBucket.Get(curHead)
		if curWorkRaw == nil {
			return fmt.Errorf("store: head %x has no work record", curHead)
		}
		curWork, err := decodeWork(curWorkRaw)
		if err != nil {
			return err
		}
		curHeightRaw := tx.Bucket(bucketHeights).Get(curHead)
		if len(curHeightRaw) != 8 {
			return fmt.Errorf("store: head %x has no height record", curHead)
		}
		if headImproves(total, header.Height, curWork, getU64be(curHeightRaw)) {
			return meta.Put(metaHeadKey, hash[:])
		}
		return nil
	})
	if err != nil {
		return err
	}
	d.blockCache.Add(hash, raw)
	return nil
}

func (d *DB) blockBytes(hash [32]byte) ([]byte, bool, error) {
	if raw, ok := d.blockCache.Get(hash); ok {
		return raw, true, nil
	}
	var out []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(hash[:])
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	d.blockCache.Add(hash, out)
	return out, true, nil
}

func (d *DB) GetBlock(hash [32]byte) (*consensus.Block, bool, error) {
	raw, ok, err := d.blockBytes(hash)
	if err != nil || !ok {
		return nil, false, err
	}
	block, err := consensus.ParseBlock(raw)
	if err != nil {
		return nil, false, fmt.Errorf("store: corrupt block record: %w", err)
	}
	return block, true, nil
}

func (d *DB) HeaderByHash(hash [32]byte) (consensus.BlockHeader, bool, error) {
	raw, ok, err := d.blockBytes(hash)
	if err != nil || !ok {
		return consensus.BlockHeader{}, false, err
	}
	if len(raw) < consensus.BlockHeaderLen {
		return consensus.BlockHeader{}, false, fmt.Errorf("store: corrupt block record: short header")
	}
	header, err := consensus.ParseBlockHeader(raw[:consensus.BlockHeaderLen])
	if err != nil {
		return consensus.BlockHeader{}, false, fmt.Errorf("store: corrupt header record: %w", err)
	}
	return header, true, nil
}

func (d *DB) GetHead() ([32]byte, bool, error) {
	var head [32]byte
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(metaHeadKey)
		if len(v) == 32 {
			copy(head[:], v)
			ok = true
		}
		return nil
	})
	return head, ok, err
}

func (d *DB) SetHead(hash [32]byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketBlocks).Get(hash[:]) == nil {
			return ErrUnknownHash
		}
		return tx.Bucket(bucketMeta).Put(metaHeadKey, hash[:])
	})
}

func (d *DB) GetHeight(hash [32]byte) (uint64, bool, error) {
	var height uint64
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHeights).Get(hash[:])
		if len(v) == 8 {
			height = getU64be(v)
			ok = true
		}
		return nil
	})
	return height, ok, err
}

func (d *DB) GetTotalWork(hash [32]byte) (*big.Int, bool, error) {
	var work *big.Int
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketWork).Get(hash[:])
		if v == nil {
			return nil
		}
		w, err := decodeWork(v)
		if err != nil {
			return err
		}
		work = w
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if work == nil {
		return nil, false, nil
	}
	return work, true, nil
}

func (d *DB) GetChildren(parent [32]byte) ([][32]byte, error) {
	var out [][32]byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketChildren).Get(parent[:])
		if v == nil {
			return nil
		}
		children, err := splitChildList(v)
		if err != nil {
			return err
		}
		out = children
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DB) Size() (uint64, error) {
	var n uint64
	err := d.db.View(func(tx *bolt.Tx) error {
		n = uint64(tx.Bucket(bucketBlocks).Stats().KeyN)
		return nil
	})
	return n, err
}

func (d *DB) BlocksInOrder() ([]*consensus.Block, error) {
	head, ok, err := d.GetHead()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var reversed []*consensus.Block
	cursor := head
	for {
		block, ok, err := d.GetBlock(cursor)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("store: broken parent link at %x", cursor)
		}
		reversed = append(reversed, block)
		if block.Header.ParentHash == consensus.ZeroHash {
			break
		}
		cursor = block.Header.ParentHash
	}
	out := make([]*consensus.Block, len(reversed))
	for i, b := range reversed {
		out[len(reversed)-1-i] = b
	}
	return out, nil
}

func putU64be(dst []byte, v uint64) {
	binary.BigEndian.PutUint64(dst, v)
}

func getU64be(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
