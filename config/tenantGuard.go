package config

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/fixtures_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenantGuardPlugin enforces multi-tenant isolation by automatically scoping
// queries/updates/deletes to the request's customer_id when the model has a
// customer_id column.
//
// NOTE:
// - Core write paths still carry the customer predicate explicitly; the
//   plugin is a second line of defense, not the primary one.
// - This does NOT apply to Raw SQL queries. Those must include customer_id
//   manually.
// - Admin/internal bypass is explicit via context flags.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	// Query
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	// Row (First/Take)
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	// Update
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	// Delete
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback); err != nil {
		return err
	}
	return nil
}

func tenantGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassTenantScope(ctx) {
		return
	}
	customerID := customerIdFromContext(ctx)
	if customerID == "" {
		return
	}

	// Only apply if the current model/table includes a customer_id column.
	if db.Statement.Schema == nil {
		return
	}
	hasCustomerID := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "customer_id") {
			hasCustomerID = true
			break
		}
	}
	if !hasCustomerID {
		return
	}

	// Don't duplicate an explicit tenant filter.
	if whereHasCustomerID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "customer_id"},
				Value:  customerID,
			},
		},
	})
}

func customerIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyCustomerId).(string); ok && v != "" {
		return v
	}
	return ""
}

func shouldBypassTenantScope(ctx context.Context) bool {
	if v, ok := ctx.Value(appctx.ContextKeySkipTenantScope).(bool); ok && v {
		return true
	}
	if v, ok := ctx.Value(appctx.ContextKeyIsAdmin).(bool); ok && v {
		return true
	}
	return false
}

func whereHasCustomerID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasCustomerID(e) {
			return true
		}
	}
	return false
}

func exprHasCustomerID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsCustomerID(v.Column)
	case clause.Neq:
		return colIsCustomerID(v.Column)
	case clause.IN:
		return colIsCustomerID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasCustomerID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasCustomerID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), "customer_id")
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), "customer_id")
	default:
		return false
	}
}

func colIsCustomerID(col interface{}) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "customer_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "customer_id")
	default:
		return false
	}
}
