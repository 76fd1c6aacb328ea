package payment

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxIntentBody = 1 << 20

// IntentHandler serves POST {cart, email} -> 200 {clientSecret} or
// 400 {error}.
type IntentHandler struct {
	creator IntentCreator
}

// NewIntentHandler creates an IntentHandler.
func NewIntentHandler(creator IntentCreator) *IntentHandler {
	return &IntentHandler{creator: creator}
}

func (h *IntentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeIntentError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIntentBody))
	if err != nil {
		writeIntentError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	req, err := DecodeIntentRequest(body)
	if err != nil {
		writeIntentError(w, http.StatusBadRequest, err.Error())
		return
	}

	intent, err := h.creator.CreateIntent(ctx, req)
	if err != nil {
		zctx.From(ctx).Warn("Payment intent rejected",
			zap.Int("items", len(req.Cart)),
			zap.Error(err),
		)
		writeIntentError(w, http.StatusBadRequest, err.Error())
		return
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("clientSecret", func(e *jx.Encoder) { e.Str(intent.ClientSecret) })
	})
	writeJSON(w, http.StatusOK, e.Bytes())
}

// DecodeIntentRequest parses {cart:[{price, quantity, ...}], email}. Unknown
// fields are ignored; each cart item is kept verbatim in CartItem.Raw.
func DecodeIntentRequest(body []byte) (IntentRequest, error) {
	var req IntentRequest
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return req, errors.New("request body must be a JSON object")
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "email":
			if d.Next() == jx.Null {
				return d.Null()
			}
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "email")
			}
			req.Email = s
			return nil
		case "cart":
			return d.Arr(func(d *jx.Decoder) error {
				raw, err := d.Raw()
				if err != nil {
					return errors.Wrap(err, "cart item")
				}
				item, err := decodeCartItem(raw)
				if err != nil {
					return errors.Wrapf(err, "cart item %d", len(req.Cart))
				}
				req.Cart = append(req.Cart, item)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return IntentRequest{}, errors.Wrap(err, "decode request")
	}
	return req, nil
}

func decodeCartItem(raw jx.Raw) (CartItem, error) {
	item := CartItem{Raw: append(jx.Raw(nil), raw...)}
	if raw.Type() != jx.Object {
		return item, errors.New("must be an object")
	}
	var hasPrice, hasQty bool
	err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			switch d.Next() {
			case jx.String:
				id, err := d.Str()
				if err != nil {
					return errors.Wrap(err, "id")
				}
				item.ID = id
			case jx.Number:
				n, err := d.Num()
				if err != nil {
					return errors.Wrap(err, "id")
				}
				item.ID = n.String()
			default:
				return d.Skip()
			}
		case "price":
			n, err := d.Num()
			if err != nil {
				return errors.Wrap(err, "price")
			}
			price, err := decimal.NewFromString(strings.Trim(n.String(), `"`))
			if err != nil {
				return errors.Wrap(err, "price")
			}
			item.Price = price
			hasPrice = true
		case "quantity":
			n, err := d.Num()
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			q, err := n.Int64()
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			item.Quantity = int(q)
			hasQty = true
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return item, err
	}
	if !hasPrice || !hasQty {
		return item, errors.New("price and quantity are required")
	}
	return item, nil
}

// EncodeIntentRequest is the inverse of DecodeIntentRequest. Items with Raw
// set are written verbatim.
func EncodeIntentRequest(req IntentRequest) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("cart", func(e *jx.Encoder) { encodeCart(e, req.Cart) })
		e.Field("email", func(e *jx.Encoder) { e.Str(req.Email) })
	})
	return e.Bytes()
}

func encodeCart(e *jx.Encoder, items []CartItem) {
	e.ArrStart()
	for _, item := range items {
		if len(item.Raw) > 0 {
			e.Raw(item.Raw)
			continue
		}
		e.Obj(func(e *jx.Encoder) {
			if item.ID != "" {
				e.Field("id", func(e *jx.Encoder) { e.Str(item.ID) })
			}
			e.Field("price", func(e *jx.Encoder) { e.Num(jx.Num(item.Price.String())) })
			e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
		})
	}
	e.ArrEnd()
}

func writeIntentError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("error", func(e *jx.Encoder) { e.Str(msg) })
	})
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
