package kfx

import "bytes"

var drmionMagic = []byte("\xeaDRMION\xee")

// IsEncrypted reports whether data is a DRMION-wrapped container.
func IsEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, drmionMagic)
}

// Decrypter turns an encrypted container into a plain one. Implementations
// live outside this module; key recovery is not provided here.
type Decrypter interface {
	Decrypt(data []byte) ([]byte, error)
}

// DecrypterFunc adapts a function to the Decrypter interface.
type DecrypterFunc func(data []byte) ([]byte, error)

func (f DecrypterFunc) Decrypt(data []byte) ([]byte, error) { return f(data) }

// Prepare returns data unchanged when it is not encrypted, runs d on it when
// it is, and fails with ErrEncrypted when it is encrypted and d is nil.
func Prepare(data []byte, d Decrypter) ([]byte, error) {
	if !IsEncrypted(data) {
		return data, nil
	}
	if d == nil {
		return nil, formatErr(ErrEncrypted, 0, "no decrypter configured")
	}
	out, err := d.Decrypt(data)
	if err != nil {
		return nil, &FormatError{Kind: ErrEncrypted, Offset: 0, Detail: "decrypt", Err: err}
	}
	if IsEncrypted(out) {
		return nil, formatErr(ErrEncrypted, 0, "decrypter returned encrypted data")
	}
	return out, nil
}
