// Package tenancy provides tenant resolution and validation for the device
// lifecycle database. It supports single-tenant (backward compatible) and
// slug-based multi-tenant modes. The tenant partitions which devices and
// records an actor or import batch may affect.
package tenancy

import (
	"context"
	"fmt"
	"regexp"
)

// Mode controls how the acting tenant is resolved.
type Mode string

const (
	// ModeSingle uses the "default" tenant for every operation (backward compat).
	ModeSingle Mode = "single"
	// ModeMulti requires an explicit tenant per operation.
	ModeMulti Mode = "multi"
)

// maxTenantLen is the maximum length for a tenant slug (DNS label convention).
const maxTenantLen = 63

// tenantRe validates tenant format: lowercase alphanumeric and hyphens,
// must start and end with an alphanumeric character.
var tenantRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// DefaultTenant is the tenant used in single-tenant mode.
const DefaultTenant = "default"

// TenantContext carries the resolved tenant and actor through an operation.
type TenantContext struct {
	Tenant string
	Actor  string
}

// ctxKey is an unexported type used as the context key for TenantContext.
type ctxKey struct{}

// WithTenant returns a new context with the given TenantContext attached.
func WithTenant(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// TenantFromContext retrieves the TenantContext from the context.
// Returns the zero value and false if no tenant is set.
func TenantFromContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(ctxKey{}).(TenantContext)
	return tc, ok
}

// Resolver resolves the acting tenant from an explicitly requested slug
// (CLI flag, import column, job field).
type Resolver interface {
	Resolve(requested string) (TenantContext, error)
}

// SingleTenantResolver always returns the default tenant, ignoring the
// requested slug.
type SingleTenantResolver struct{}

// Resolve always returns a TenantContext with the default tenant.
func (SingleTenantResolver) Resolve(_ string) (TenantContext, error) {
	return TenantContext{Tenant: DefaultTenant}, nil
}

// MultiTenantResolver requires an explicit, valid tenant slug.
type MultiTenantResolver struct{}

// Resolve validates the requested slug. Returns an error if it is missing or
// invalid.
func (MultiTenantResolver) Resolve(requested string) (TenantContext, error) {
	if requested == "" {
		return TenantContext{}, fmt.Errorf("a tenant is required in multi-tenant mode")
	}
	if err := ValidateTenant(requested); err != nil {
		return TenantContext{}, err
	}
	return TenantContext{Tenant: requested}, nil
}

// NewResolver returns the resolver for the given mode.
func NewResolver(mode Mode) Resolver {
	if mode == ModeMulti {
		return MultiTenantResolver{}
	}
	return SingleTenantResolver{}
}

// ValidateTenant checks that a tenant slug conforms to DNS label rules:
// lowercase alphanumeric and hyphens, 1-63 characters, starts and ends with
// an alphanumeric character.
func ValidateTenant(tenant string) error {
	if len(tenant) > maxTenantLen {
		return fmt.Errorf("tenant %q exceeds maximum length of %d characters", tenant, maxTenantLen)
	}
	if !tenantRe.MatchString(tenant) {
		return fmt.Errorf("tenant %q is invalid: must consist of lowercase alphanumeric characters or hyphens, and must start and end with an alphanumeric character", tenant)
	}
	return nil
}
