package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/roseila-storefront/internal/admin"
	"github.com/xenking/roseila-storefront/internal/cart"
	"github.com/xenking/roseila-storefront/internal/checkout"
	"github.com/xenking/roseila-storefront/internal/domain/order"
	"github.com/xenking/roseila-storefront/internal/domain/product"
	"github.com/xenking/roseila-storefront/internal/domain/user"
	"github.com/xenking/roseila-storefront/internal/identity"
	"github.com/xenking/roseila-storefront/internal/session"
	"github.com/xenking/roseila-storefront/internal/storefront"
	"github.com/xenking/roseila-storefront/internal/view"
	"github.com/xenking/roseila-storefront/pkg/httpmiddleware"
)

var (
	errNoRoute          = errors.New("route not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errUnknownRole      = errors.New("role must be customer or admin")
)

type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }

func (e *badRequestError) Unwrap() error { return e.err }

// problemFor maps err to the API problem body. Unknown errors become an
// opaque 500.
func problemFor(err error) httpmiddleware.Problem {
	p := func(code int, kind string) httpmiddleware.Problem {
		return httpmiddleware.Problem{Code: code, Kind: kind, Message: err.Error()}
	}

	var (
		badReq     *badRequestError
		validation *checkout.ValidationError
		intentErr  *checkout.PaymentIntentError
		declined   *checkout.PaymentDeclinedError
		persist    *checkout.PersistenceError
		authErr    *session.AuthError
		transition *order.InvalidTransitionError
		badProduct *admin.InvalidProductError
	)
	switch {
	case errors.As(err, &badReq):
		return p(http.StatusBadRequest, "bad_request")
	case errors.As(err, &validation):
		pr := p(http.StatusUnprocessableEntity, "validation")
		pr.Field = validation.Field
		return pr
	case errors.As(err, &persist):
		// Checked before ErrAuthRequired: a session that ended after the
		// charge is still an orphaned payment.
		pr := p(http.StatusInternalServerError, "order_not_saved")
		pr.Action = "contact_support"
		return pr
	case errors.Is(err, checkout.ErrEmptyCart):
		return p(http.StatusConflict, "empty_cart")
	case errors.Is(err, checkout.ErrInProgress):
		return p(http.StatusConflict, "checkout_in_progress")
	case errors.As(err, &intentErr):
		return p(http.StatusBadGateway, "payment_intent")
	case errors.As(err, &declined):
		return p(http.StatusPaymentRequired, "payment_declined")
	case errors.Is(err, checkout.ErrAuthRequired), errors.Is(err, session.ErrAuthRequired):
		pr := p(http.StatusUnauthorized, "auth_required")
		pr.Action = "sign_in"
		return pr
	case errors.Is(err, session.ErrForbidden):
		return p(http.StatusForbidden, "forbidden")
	case errors.As(err, &authErr):
		return p(authStatus(authErr.Err), "auth")
	case errors.As(err, &badProduct):
		return p(http.StatusUnprocessableEntity, "validation")
	case errors.Is(err, cart.ErrInvalidQuantity):
		return p(http.StatusUnprocessableEntity, "validation")
	case errors.Is(err, storefront.ErrUnknownClient):
		pr := p(http.StatusNotFound, "unknown_client")
		pr.Action = "reload"
		return pr
	case errors.Is(err, product.ErrNotFound), errors.Is(err, order.ErrNotFound),
		errors.Is(err, user.ErrNotFound), errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, errNoRoute):
		return p(http.StatusNotFound, "not_found")
	case errors.Is(err, errMethodNotAllowed):
		return p(http.StatusMethodNotAllowed, "method_not_allowed")
	case errors.Is(err, view.ErrUnknownView):
		return p(http.StatusBadRequest, "bad_request")
	case errors.As(err, &transition), errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, product.ErrExists), errors.Is(err, admin.ErrSelfDemotion):
		return p(http.StatusConflict, "conflict")
	default:
		return httpmiddleware.Problem{
			Code:    http.StatusInternalServerError,
			Kind:    "internal",
			Message: "internal error",
		}
	}
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrEmailInUse):
		return http.StatusConflict
	case errors.Is(err, identity.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err)
	lg := zctx.From(r.Context())
	switch {
	case p.Kind == "order_not_saved":
		lg.Error("Order not saved after payment", zap.Error(err))
	case p.Code >= http.StatusInternalServerError:
		lg.Error("Request failed", zap.Error(err))
	default:
		lg.Debug("Request rejected", zap.String("kind", p.Kind), zap.Error(err))
	}
	httpmiddleware.WriteProblem(w, p)
}
