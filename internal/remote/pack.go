package remote

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
)

const (
	LayerMinSize = 2 * 1024 * 1024  // 2MB minimum before combining
	LayerSoftMax = 10 * 1024 * 1024 // 10MB soft maximum
)

var ErrCorruptLayer = errors.New("remote: corrupt blob layer")

// GroupByPrefix buckets blobs by the first two characters of their hash,
// the same fan-out the cache uses on disk.
func GroupByPrefix(blobs map[string][]byte) map[string]map[string][]byte {
	result := make(map[string]map[string][]byte)
	for hash, data := range blobs {
		prefix := prefixOf(hash)
		if result[prefix] == nil {
			result[prefix] = make(map[string][]byte)
		}
		result[prefix][hash] = data
	}
	return result
}

func prefixOf(hash string) string {
	if len(hash) >= 2 {
		return hash[:2]
	}
	return "00"
}

// BuildLayerPlan groups prefixes into layers of roughly LayerSoftMax bytes.
// Small trailing groups are merged so no layer is needlessly tiny.
func BuildLayerPlan(prefixSizes map[string]int64) [][]string {
	prefixes := make([]string, 0, len(prefixSizes))
	for p := range prefixSizes {
		prefixes = append(prefixes, p)
	}
	slices.Sort(prefixes)

	var layers [][]string
	var current []string
	var size int64

	for _, prefix := range prefixes {
		prefixSize := prefixSizes[prefix]

		if len(current) == 0 {
			current = append(current, prefix)
			size = prefixSize
			continue
		}

		newSize := size + prefixSize
		switch {
		case newSize <= LayerSoftMax:
			current = append(current, prefix)
			size = newSize
		case size < LayerMinSize && newSize <= 2*LayerSoftMax:
			current = append(current, prefix)
			size = newSize
		default:
			layers = append(layers, current)
			current = []string{prefix}
			size = prefixSize
		}
	}

	if len(current) > 0 {
		layers = append(layers, current)
	}
	return layers
}

func prefixSizes(byPrefix map[string]map[string][]byte) map[string]int64 {
	result := make(map[string]int64, len(byPrefix))
	for prefix, blobs := range byPrefix {
		var total int64
		for _, data := range blobs {
			total += int64(len(data))
		}
		result[prefix] = total
	}
	return result
}

func collect(prefixes []string, byPrefix map[string]map[string][]byte) map[string][]byte {
	result := make(map[string][]byte)
	for _, prefix := range prefixes {
		for hash, data := range byPrefix[prefix] {
			result[hash] = data
		}
	}
	return result
}

// PackLayer serializes blobs in hash order as repeated records of
// [hash length u16][hash][data length u64][data], big endian.
func PackLayer(blobs map[string][]byte) []byte {
	hashes := make([]string, 0, len(blobs))
	for h := range blobs {
		hashes = append(hashes, h)
	}
	slices.Sort(hashes)

	var buf bytes.Buffer
	var lenBuf [8]byte
	for _, hash := range hashes {
		data := blobs[hash]

		binary.BigEndian.PutUint16(lenBuf[:2], uint16(len(hash)))
		buf.Write(lenBuf[:2])
		buf.WriteString(hash)

		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
		buf.Write(lenBuf[:])
		buf.Write(data)
	}
	return buf.Bytes()
}

// UnpackLayer reverses PackLayer.
func UnpackLayer(data []byte) (map[string][]byte, error) {
	result := make(map[string][]byte)
	r := bytes.NewReader(data)

	for r.Len() > 0 {
		var hashLen uint16
		if err := binary.Read(r, binary.BigEndian, &hashLen); err != nil {
			return nil, fmt.Errorf("%w: read hash length: %w", ErrCorruptLayer, err)
		}
		hash := make([]byte, hashLen)
		if _, err := io.ReadFull(r, hash); err != nil {
			return nil, fmt.Errorf("%w: read hash: %w", ErrCorruptLayer, err)
		}

		var length uint64
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("%w: read length: %w", ErrCorruptLayer, err)
		}
		if length > uint64(r.Len()) {
			return nil, fmt.Errorf("%w: blob %s claims %d bytes, %d left", ErrCorruptLayer, hash, length, r.Len())
		}
		blob := make([]byte, length)
		if _, err := io.ReadFull(r, blob); err != nil {
			return nil, fmt.Errorf("%w: read data: %w", ErrCorruptLayer, err)
		}

		result[string(hash)] = blob
	}
	return result, nil
}
