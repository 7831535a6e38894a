package consensus

import "encoding/binary"

// Canonical encoding rules: every multi-byte integer is big-endian, every
// variable-length field is a 4-byte unsigned length followed by that many
// bytes. Field order is fixed per type and round-trips byte-exactly.

func appendU32be(dst []byte, v uint32) []byte {
	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], v)
	return append(dst, tmp4[:]...)
}

func appendU64be(dst []byte, v uint64) []byte {
	var tmp8 [8]byte
	binary.BigEndian.PutUint64(tmp8[:], v)
	return append(dst, tmp8[:]...)
}

func appendVarBytes(dst []byte, b []byte) []byte {
	dst = appendU32be(dst, uint32(len(b)))
	return append(dst, b...)
}

// TxUnsignedBytes serializes every transaction field except Signature and
// PublicKey, in fixed order:
// version, chain_id, from, to, amount, fee, nonce, timestamp, payload.
// It fails only on oversize inputs; all other size math is exact.
func TxUnsignedBytes(tx *Transaction) ([]byte, error) {
	if tx == nil {
		return nil, ruleErr(TX_ERR_PARSE, "nil transaction")
	}
	if len(tx.From) > MaxAddressLen || len(tx.To) > MaxAddressLen {
		return nil, ruleErr(TX_ERR_ENCODE_OVERSIZE, "address too long")
	}
	if len(tx.Payload) > MaxPayloadBytes {
		return nil, ruleErr(TX_ERR_ENCODE_OVERSIZE, "payload too long")
	}
	out := make([]byte, 0, 4+8+4+len(tx.From)+4+len(tx.To)+8+8+8+8+4+len(tx.Payload))
	out = appendU32be(out, tx.Version)
	out = appendU64be(out, tx.ChainID)
	out = appendVarBytes(out, []byte(tx.From))
	out = appendVarBytes(out, []byte(tx.To))
	out = appendU64be(out, tx.AmountMinor)
	out = appendU64be(out, tx.FeeMinor)
	out = appendU64be(out, tx.Nonce)
	out = appendU64be(out, tx.TimestampMS)
	out = appendVarBytes(out, tx.Payload)
	return out, nil
}

// TxBytes serializes the full transaction: the unsigned fields followed by
// the signature and public key, each length-prefixed.
func TxBytes(tx *Transaction) ([]byte, error) {
	out, err := TxUnsignedBytes(tx)
	if err != nil {
		return nil, err
	}
	out = appendVarBytes(out, tx.Signature)
	out = appendVarBytes(out, tx.PublicKey)
	return out, nil
}

// BlockHeaderBytes serializes a header into its canonical 92-byte form:
// parent_hash, merkle_root, height, timestamp_ms, difficulty_bits, nonce.
func BlockHeaderBytes(header BlockHeader) []byte {
	out := make([]byte, 0, BlockHeaderLen)
	out = append(out, header.ParentHash[:]...)
	out = append(out, header.MerkleRoot[:]...)
	out = appendU64be(out, header.Height)
	out = appendU64be(out, header.TimestampMS)
	out = appendU32be(out, header.DifficultyBits)
	out = appendU64be(out, header.Nonce)
	return out
}

// BlockBytes serializes a block: canonical header, 4-byte transaction count,
// then each transaction in order.
func BlockBytes(block *Block) ([]byte, error) {
	if block == nil {
		return nil, ruleErr(BLOCK_ERR_PARSE, "nil block")
	}
	if len(block.Transactions) > MaxBlockTxCount {
		return nil, ruleErr(BLOCK_ERR_TX_COUNT_EXCEEDED, "too many transactions")
	}
	out := make([]byte, 0, BlockHeaderLen+4)
	out = append(out, BlockHeaderBytes(block.Header)...)
	out = appendU32be(out, uint32(len(block.Transactions)))
	for i := range block.Transactions {
		txBytes, err := TxBytes(&block.Transactions[i])
		if err != nil {
			return nil, err
		}
		out = append(out, txBytes...)
	}
	return out, nil
}
