package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	errs "github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/internal/transport"
)

// LoadOpenAPI reads and validates the API document at path.
func LoadOpenAPI(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

// OpenAPIValidator rejects requests whose parameters or body do not match the document.
// Routes the document does not describe pass through untouched. Authentication is left
// to the auth middleware.
func OpenAPIValidator(doc *openapi3.T, base *transport.BaseHandler) (func(http.Handler) http.Handler, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build openapi router: %w", err)
	}

	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		MultiError:         true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed) {
					next.ServeHTTP(w, r)
					return
				}
				base.HandleError(w, r, errs.NewInternalError("openapi route lookup failed", err))
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				base.HandleError(w, r, errs.NewValidationError("request does not match the API schema", errs.ErrCodeValidationFailed).
					WithDetails(errs.ValidationErrors{Errors: schemaErrors(err)}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func schemaErrors(err error) []errs.ValidationError {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		out := make([]errs.ValidationError, 0, len(multi))
		for _, e := range multi {
			out = append(out, schemaError(e))
		}
		return out
	}
	return []errs.ValidationError{schemaError(err)}
}

func schemaError(err error) errs.ValidationError {
	field := ""
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			field = reqErr.Parameter.Name
		} else if reqErr.RequestBody != nil {
			field = "body"
		}
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		if path := schemaErr.JSONPointer(); len(path) > 0 {
			field = path[len(path)-1]
		}
		return errs.ValidationError{Field: field, Message: schemaErr.Reason, Code: string(errs.ErrCodeValidationFailed)}
	}
	return errs.ValidationError{Field: field, Message: err.Error(), Code: string(errs.ErrCodeValidationFailed)}
}
