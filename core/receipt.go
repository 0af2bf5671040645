package core

// Receipt status values.
const (
	ReceiptSuccess = "success"
	ReceiptFailed  = "failed"
)

// Receipt records the outcome of one transaction. Failed transactions never
// enter a block, so their receipts carry no block height.
type Receipt struct {
	TxID        string        `json:"tx_id"`
	Type        TxType        `json:"type"`
	From        string        `json:"from"`
	Status      string        `json:"status"`
	BlockHeight int64         `json:"block_height,omitempty"`
	Error       *ProgramError `json:"error,omitempty"`
	Message     string        `json:"message,omitempty"`
}

// NewReceipt builds a receipt for tx from the outcome err.
func NewReceipt(tx *Transaction, height int64, err error) *Receipt {
	r := &Receipt{TxID: tx.ID, Type: tx.Type, From: tx.From, Status: ReceiptSuccess, BlockHeight: height}
	if err == nil {
		return r
	}
	r.Status = ReceiptFailed
	r.BlockHeight = 0
	r.Message = err.Error()
	if pe, ok := AsProgramError(err); ok {
		r.Error = pe
	}
	return r
}

// Failed reports whether the transaction was rejected.
func (r *Receipt) Failed() bool { return r.Status == ReceiptFailed }
