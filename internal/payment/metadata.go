package payment

import (
	"strconv"
	"strings"

	"github.com/go-faster/jx"
)

// Gateway metadata limits.
const (
	MaxMetadataKeys  = 50
	MaxMetadataValue = 500

	maxMetadataID = 64
)

// Metadata keys describing the cart of an intent. The cart is a JSON array of
// {id, price, quantity} split over CartChunkKey(0..n) so that no value exceeds
// MaxMetadataValue. CartTruncatedKey holds the number of items left out when
// the chunks would exceed MaxMetadataKeys.
const (
	CartItemsKey     = "cart_items"
	CartTruncatedKey = "cart_truncated"

	cartChunkPrefix = "cart_"
	maxCartChunks   = MaxMetadataKeys - 2
)

// CartChunkKey returns the metadata key of the i-th cart chunk.
func CartChunkKey(i int) string {
	return cartChunkPrefix + strconv.Itoa(i)
}

// cartMetadata encodes items in compact form, packing as many items per
// chunk as fit.
func cartMetadata(items []CartItem) map[string]string {
	md := map[string]string{CartItemsKey: strconv.Itoa(len(items))}

	var (
		buf    []byte
		chunks int
	)
	flush := func() {
		md[CartChunkKey(chunks)] = "[" + string(buf) + "]"
		chunks++
		buf = buf[:0]
	}
	for i, item := range items {
		enc := compactCartItem(item)
		// Comma and brackets.
		if len(buf) > 0 && len(buf)+len(enc)+3 > MaxMetadataValue {
			flush()
		}
		if chunks == maxCartChunks {
			md[CartTruncatedKey] = strconv.Itoa(len(items) - i)
			return md
		}
		if len(buf) > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, enc...)
	}
	if len(buf) > 0 {
		flush()
	}
	return md
}

func compactCartItem(item CartItem) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if item.ID != "" {
			e.Field("id", func(e *jx.Encoder) { e.Str(shortID(item.ID)) })
		}
		e.Field("price", func(e *jx.Encoder) { e.Num(jx.Num(item.Price.String())) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
	})
	return e.Bytes()
}

func shortID(id string) string {
	if len(id) <= maxMetadataID {
		return id
	}
	return strings.ToValidUTF8(id[:maxMetadataID], "")
}
