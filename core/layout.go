package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tolelom/dealchain/crypto"
)

// Accounts are stored as an 8-byte discriminator followed by little-endian
// fields: pubkeys as 32 raw bytes, strings as a u32 length plus UTF-8 bytes,
// options as a one-byte tag plus the value. External indexers decode this
// layout directly, so field order is frozen.

// DiscriminatorSize is the length of the record-type prefix.
const DiscriminatorSize = 8

var errShortBuffer = errors.New("account data too short")

// discriminator derives the record-type prefix for name.
func discriminator(name string) [DiscriminatorSize]byte {
	var d [DiscriminatorSize]byte
	copy(d[:], crypto.HashBytes([]byte("account:"+name)))
	return d
}

type layoutWriter struct {
	buf []byte
	err error
}

func newLayoutWriter(disc [DiscriminatorSize]byte, size int) *layoutWriter {
	w := &layoutWriter{buf: make([]byte, 0, size)}
	w.buf = append(w.buf, disc[:]...)
	return w
}

func (w *layoutWriter) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *layoutWriter) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *layoutWriter) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *layoutWriter) i64(v int64) { w.u64(uint64(v)) }

func (w *layoutWriter) str(v string) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *layoutWriter) pubkey(addr string) {
	if w.err != nil {
		return
	}
	pub, err := crypto.PubKeyFromString(addr)
	if err != nil {
		w.err = err
		return
	}
	w.buf = append(w.buf, pub...)
}

func (w *layoutWriter) optI64(v *int64) {
	if v == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.i64(*v)
}

func (w *layoutWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

type layoutReader struct {
	buf []byte
	off int
	err error
}

func newLayoutReader(data []byte, disc [DiscriminatorSize]byte, name string) *layoutReader {
	r := &layoutReader{buf: data}
	if len(data) < DiscriminatorSize {
		r.err = errShortBuffer
		return r
	}
	if [DiscriminatorSize]byte(data[:DiscriminatorSize]) != disc {
		r.err = fmt.Errorf("account discriminator mismatch: not a %s", name)
		return r
	}
	r.off = DiscriminatorSize
	return r
}

func (r *layoutReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = errShortBuffer
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *layoutReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *layoutReader) boolean() bool { return r.u8() != 0 }

func (r *layoutReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *layoutReader) i64() int64 { return int64(r.u64()) }

func (r *layoutReader) str() string {
	b := r.take(4)
	if b == nil {
		return ""
	}
	return string(r.take(int(binary.LittleEndian.Uint32(b))))
}

func (r *layoutReader) pubkey() string {
	b := r.take(crypto.PublicKeySize)
	if b == nil {
		return ""
	}
	return crypto.PublicKey(b).String()
}

func (r *layoutReader) optI64() *int64 {
	if r.u8() == 0 {
		return nil
	}
	v := r.i64()
	if r.err != nil {
		return nil
	}
	return &v
}
