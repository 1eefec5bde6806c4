package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	platformmiddleware "github.com/hardhat-labs/crewdeck/platform/go/middleware"
)

// mustNewSpecValidator loads the OpenAPI document and builds request-validation
// middleware for one domain's route group.
func mustNewSpecValidator(logger *zap.Logger, path string) func(http.Handler) http.Handler {
	spec := mustLoadSpec(logger, path)

	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: platformmiddleware.ValidateAuthenticationViaSwagger,
		},
	})
}

// mustLoadSpec loads and returns the OpenAPI document, resolving relative
// file references next to the document itself.
func mustLoadSpec(logger *zap.Logger, path string) *openapi3.T {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	absPath, err := filepath.Abs(path)
	if err != nil {
		logger.Fatal("resolve spec path", zap.String("path", path), zap.Error(err))
	}

	baseDir := filepath.Dir(absPath)
	loader.ReadFromURIFunc = func(loader *openapi3.Loader, ref *url.URL) ([]byte, error) {
		if ref == nil {
			return nil, errors.New("nil reference URI")
		}

		if ref.IsAbs() {
			switch ref.Scheme {
			case "file":
				data, err := os.ReadFile(ref.Path)
				if err != nil {
					return nil, fmt.Errorf("read reference %q: %w", ref.Path, err)
				}
				return data, nil
			default:
				return nil, fmt.Errorf("unsupported reference scheme %q", ref.String())
			}
		}

		refPath := filepath.Clean(ref.Path)
		if refPath == "" {
			return nil, fmt.Errorf("empty reference path for %q", ref.String())
		}

		candidate := filepath.Join(baseDir, refPath)
		data, err := os.ReadFile(candidate)
		if err != nil {
			return nil, fmt.Errorf("read reference %q: %w", candidate, err)
		}
		return data, nil
	}

	spec, err := loader.LoadFromFile(absPath)
	if err != nil {
		logger.Fatal("load openapi spec", zap.String("path", path), zap.Error(err))
	}

	ensureSecuritySchemes(logger, path, spec)
	return spec
}

func ensureSecuritySchemes(logger *zap.Logger, path string, spec *openapi3.T) {
	if spec.Components == nil {
		spec.Components = &openapi3.Components{}
	}
	if spec.Components.SecuritySchemes == nil {
		spec.Components.SecuritySchemes = openapi3.SecuritySchemes{}
	}

	if _, ok := spec.Components.SecuritySchemes["bearerAuth"]; !ok {
		spec.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:   "http",
				Scheme: "bearer",
			},
		}
		logger.Warn("injecting default bearerAuth security scheme", zap.String("path", path))
	}
}
