// Package dbctx bundles a request-scoped context with an optional GORM
// transaction so repos can share either the ambient connection pool or a
// caller-supplied transaction without an extra parameter at every call site.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
