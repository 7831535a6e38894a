package consensus

import (
	"encoding/binary"
	"fmt"
)

func readExact(b []byte, off *int, n int, field string) ([]byte, error) {
	if n < 0 || len(b)-*off < n {
		return nil, ruleErr(TX_ERR_PARSE, fmt.Sprintf("%s: truncated", field))
	}
	out := b[*off : *off+n]
	*off += n
	return out, nil
}

func readU32be(b []byte, off *int, field string) (uint32, error) {
	raw, err := readExact(b, off, 4, field)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(raw), nil
}

func readU64be(b []byte, off *int, field string) (uint64, error) {
	raw, err := readExact(b, off, 8, field)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

func readVarBytes(b []byte, off *int, maxLen int, field string) ([]byte, error) {
	n, err := readU32be(b, off, field)
	if err != nil {
		return nil, err
	}
	if maxLen >= 0 && n > uint32(maxLen) {
		return nil, ruleErr(TX_ERR_PARSE, fmt.Sprintf("%s: length %d exceeds cap %d", field, n, maxLen))
	}
	raw, err := readExact(b, off, int(n), field)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), raw...), nil
}

func parseTxAt(b []byte, off *int) (Transaction, error) {
	var tx Transaction
	var err error

	if tx.Version, err = readU32be(b, off, "version"); err != nil {
		return Transaction{}, err
	}
	if tx.ChainID, err = readU64be(b, off, "chain_id"); err != nil {
		return Transaction{}, err
	}
	from, err := readVarBytes(b, off, MaxAddressLen, "from")
	if err != nil {
		return Transaction{}, err
	}
	tx.From = string(from)
	to, err := readVarBytes(b, off, MaxAddressLen, "to")
	if err != nil {
		return Transaction{}, err
	}
	tx.To = string(to)
	if tx.AmountMinor, err = readU64be(b, off, "amount_minor"); err != nil {
		return Transaction{}, err
	}
	if tx.FeeMinor, err = readU64be(b, off, "fee_minor"); err != nil {
		return Transaction{}, err
	}
	if tx.Nonce, err = readU64be(b, off, "nonce"); err != nil {
		return Transaction{}, err
	}
	if tx.TimestampMS, err = readU64be(b, off, "timestamp_ms"); err != nil {
		return Transaction{}, err
	}
	if tx.Payload, err = readVarBytes(b, off, MaxPayloadBytes, "payload"); err != nil {
		return Transaction{}, err
	}
	if tx.Signature, err = readVarBytes(b, off, SignatureLen, "signature"); err != nil {
		return Transaction{}, err
	}
	if tx.PublicKey, err = readVarBytes(b, off, -1, "public_key"); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// ParseTx decodes a transaction from its full serialization. Trailing bytes
// are rejected so the encoding stays canonical.
func ParseTx(b []byte) (Transaction, error) {
	off := 0
	tx, err := parseTxAt(b, &off)
	if err != nil {
		return Transaction{}, err
	}
	if off != len(b) {
		return Transaction{}, ruleErr(TX_ERR_PARSE, "trailing bytes after transaction")
	}
	return tx, nil
}

// ParseBlockHeader decodes a canonical 92-byte header.
func ParseBlockHeader(b []byte) (BlockHeader, error) {
	if len(b) != BlockHeaderLen {
		return BlockHeader{}, ruleErr(BLOCK_ERR_PARSE,
			fmt.Sprintf("header: expected %d bytes, got %d", BlockHeaderLen, len(b)))
	}
	var h BlockHeader
	off := 0
	copy(h.ParentHash[:], b[0:32])
	copy(h.MerkleRoot[:], b[32:64])
	off = 64
	h.Height, _ = readU64be(b, &off, "height")
	h.TimestampMS, _ = readU64be(b, &off, "timestamp_ms")
	h.DifficultyBits, _ = readU32be(b, &off, "difficulty_bits")
	h.Nonce, _ = readU64be(b, &off, "nonce")
	return h, nil
}

// ParseBlock decodes a block: header, transaction count, transactions.
// Trailing bytes are rejected.
func ParseBlock(b []byte) (*Block, error) {
	if len(b) < BlockHeaderLen {
		return nil, ruleErr(BLOCK_ERR_PARSE, "block: truncated header")
	}
	header, err := ParseBlockHeader(b[:BlockHeaderLen])
	if err != nil {
		return nil, err
	}
	off := BlockHeaderLen
	count, err := readU32be(b, &off, "tx_count")
	if err != nil {
		return nil, err
	}
	if count > MaxBlockTxCount {
		return nil, ruleErr(BLOCK_ERR_TX_COUNT_EXCEEDED, "too many transactions")
	}
	txs := make([]Transaction, 0, count)
	for i := uint32(0); i < count; i++ {
		tx, err := parseTxAt(b, &off)
		if err != nil {
			return nil, ruleErr(BLOCK_ERR_PARSE, fmt.Sprintf("tx[%d]: %v", i, err))
		}
		txs = append(txs, tx)
	}
	if off != len(b) {
		return nil, ruleErr(BLOCK_ERR_PARSE, "trailing bytes after block")
	}
	return &Block{Header: header, Transactions: txs}, nil
}
