package consensus

const (
	// TxVersion is the only transaction version this node understands.
	TxVersion uint32 = 1

	MinAddressLen = 8
	MaxAddressLen = 128

	MaxPayloadBytes = 8192

	// SignatureLen is the only non-zero signature length accepted. The core
	// treats the signature as an opaque blob; cryptographic verification
	// belongs to the wallet collaborator.
	SignatureLen = 64
)

// Transaction is an immutable account-model value transfer. Amounts and fees
// are in minor units. The identity of a transaction is the SHA-256 of its
// unsigned encoding, so mutating Signature or PublicKey never changes the id.
type Transaction struct {
	Version     uint32
	ChainID     uint64
	From        string
	To          string
	AmountMinor uint64
	FeeMinor    uint64
	Nonce       uint64
	TimestampMS uint64
	Payload     []byte
	Signature   []byte
	PublicKey   []byte
}

// BuildTx validates fields and returns the transaction with its byte slices
// copied, so later caller mutation cannot alias into the result.
func BuildTx(tx Transaction) (Transaction, error) {
	if err := ValidateTx(&tx); err != nil {
		return Transaction{}, err
	}
	tx.Payload = append([]byte(nil), tx.Payload...)
	tx.Signature = append([]byte(nil), tx.Signature...)
	tx.PublicKey = append([]byte(nil), tx.PublicKey...)
	return tx, nil
}

// ValidateTx applies the stateless transaction rules. Stateful admission
// (nonce equality, funds, fee floor) lives in the mempool.
func ValidateTx(tx *Transaction) error {
	if tx == nil {
		return ruleErr(TX_ERR_PARSE, "nil transaction")
	}
	if tx.Version != TxVersion {
		return ruleErr(TX_ERR_VERSION_INVALID, "unsupported version")
	}
	if tx.ChainID == 0 {
		return ruleErr(TX_ERR_CHAIN_ID_INVALID, "chain_id must be > 0")
	}
	if !ValidAddress(tx.From) {
		return ruleErr(TX_ERR_ADDRESS_INVALID, "bad from address")
	}
	if !ValidAddress(tx.To) {
		return ruleErr(TX_ERR_ADDRESS_INVALID, "bad to address")
	}
	if tx.From == tx.To {
		return ruleErr(TX_ERR_SELF_TRANSFER, "from equals to")
	}
	if tx.AmountMinor == 0 {
		return ruleErr(TX_ERR_AMOUNT_INVALID, "amount must be > 0")
	}
	if tx.TimestampMS == 0 {
		return ruleErr(TX_ERR_TIMESTAMP_INVALID, "timestamp must be > 0")
	}
	if len(tx.Payload) > MaxPayloadBytes {
		return ruleErr(TX_ERR_PAYLOAD_OVERSIZE, "payload exceeds 8 KiB")
	}
	if len(tx.Signature) != 0 && len(tx.Signature) != SignatureLen {
		return ruleErr(TX_ERR_SIG_LENGTH_INVALID, "signature length must be 0 or 64")
	}
	return nil
}

// ValidAddress reports whether s is 8-128 characters drawn from the address
// alphabet [0-9a-fA-F_:-].
func ValidAddress(s string) bool {
	if len(s) < MinAddressLen || len(s) > MaxAddressLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		case c == '_' || c == ':' || c == '-':
		default:
			return false
		}
	}
	return true
}

// TxID computes the transaction identity: SHA-256 over the unsigned encoding.
func TxID(tx *Transaction) ([32]byte, error) {
	unsigned, err := TxUnsignedBytes(tx)
	if err != nil {
		return [32]byte{}, err
	}
	return Hash256(unsigned), nil
}
