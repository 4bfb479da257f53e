package dds

import (
	"crypto/md5"
	"encoding/binary"

	"github.com/dataflume/flumedds/serialization"
)

// Keyed marks a data type whose samples belong to instances. The returned
// key value must be CDR-serializable and stable for the instance across
// the sample's lifetime. Types without keys form a single anonymous
// instance per topic.
type Keyed interface {
	Key() any
}

// KeyHash computes the 16-byte instance hash: the big-endian CDR form of
// the key, zero padded when it fits, and its MD5 digest when it does not.
func KeyHash(key any) ([16]byte, error) {
	var hash [16]byte
	body, err := serialization.MarshalBody(key, binary.BigEndian)
	if err != nil {
		return hash, err
	}
	if len(body) <= 16 {
		copy(hash[:], body)
		return hash, nil
	}
	return md5.Sum(body), nil
}
