package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/roseila-storefront/internal/checkout"
	"github.com/xenking/roseila-storefront/internal/view"
)

type createClientRequest struct {
	// Token is a session token from an earlier client.
	Token string `json:"token"`
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.clients.Create(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClient(c))
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toClient(clientFrom(r)))
}

func (h *Handler) closeClient(w http.ResponseWriter, r *http.Request) {
	h.clients.Remove(clientFrom(r).ID())
	w.WriteHeader(http.StatusNoContent)
}

type signInRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	IDToken     string `json:"idToken"`
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := clientFrom(r)
	if _, err := c.Session().SignIn(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClient(c))
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := clientFrom(r)
	if _, err := c.Session().SignUp(r.Context(), req.Email, req.Password, req.DisplayName); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClient(c))
}

func (h *Handler) socialSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := clientFrom(r)
	if _, err := c.Session().SocialSignIn(r.Context(), req.IDToken); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClient(c))
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r)
	c.Session().SignOut(r.Context())
	writeJSON(w, http.StatusOK, toClient(c))
}

func (h *Handler) getView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.ToRef(clientFrom(r).Router().Current()))
}

// navigate requests a view; the response is the view actually shown, which
// differs when access rules redirect.
func (h *Handler) navigate(w http.ResponseWriter, r *http.Request) {
	var ref view.Ref
	if err := decode(r, &ref); err != nil {
		writeError(w, r, err)
		return
	}
	target, err := view.FromRef(ref)
	if err != nil {
		writeError(w, r, &badRequestError{err})
		return
	}
	writeJSON(w, http.StatusOK, view.ToRef(clientFrom(r).Navigate(target)))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toCart(clientFrom(r).Cart()))
}

type lineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Delta     int    `json:"delta"`
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	req := lineRequest{Quantity: 1}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := clientFrom(r)
	if err := c.AddToCart(req.ProductID, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(c.Cart()))
}

func (h *Handler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := clientFrom(r)
	if err := c.Cart().UpdateQuantity(chi.URLParam(r, "productID"), req.Delta); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(c.Cart()))
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r)
	c.Cart().RemoveLine(chi.URLParam(r, "productID"))
	writeJSON(w, http.StatusOK, toCart(c.Cart()))
}

func (h *Handler) addToWishlist(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := clientFrom(r)
	if err := c.AddToWishlist(req.ProductID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(c.Cart()))
}

func (h *Handler) removeFromWishlist(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r)
	c.Cart().RemoveFromWishlist(chi.URLParam(r, "productID"))
	writeJSON(w, http.StatusOK, toCart(c.Cart()))
}

func (h *Handler) checkoutStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toCheckout(clientFrom(r).Checkout().Status()))
}

type checkoutResponse struct {
	Order  orderDTO  `json:"order"`
	Client clientDTO `json:"client"`
}

func (h *Handler) submitCheckout(w http.ResponseWriter, r *http.Request) {
	var form checkout.Form
	if err := decode(r, &form); err != nil {
		writeError(w, r, err)
		return
	}
	c := clientFrom(r)
	placed, err := c.SubmitCheckout(r.Context(), form)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{Order: toOrder(*placed), Client: toClient(c)})
}

func (h *Handler) resetCheckout(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r)
	c.Checkout().Reset()
	writeJSON(w, http.StatusOK, toCheckout(c.Checkout().Status()))
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := clientFrom(r).OrderHistory(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(orders))
}
