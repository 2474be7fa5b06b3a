// Package privacy provides the rules a client.DB evaluates before it
// compiles a query or a mutation.
//
// Rules return Allow, Deny or Skip. A policy evaluates its rules in order
// and stops at the first decision other than Skip; when every rule skips,
// the operation runs.
//
//	db, err := client.Open(dialect.SQLite, dsn, client.WithPolicy(privacy.Policy{
//	    Query: privacy.QueryPolicy{
//	        privacy.DenyIfNoViewer(),
//	        privacy.TenantFilter("TenantID"),
//	    },
//	    Mutation: privacy.MutationPolicy{
//	        privacy.DenyIfNoViewer(),
//	        privacy.HasRole("admin"),
//	        privacy.IsOwner("OwnerID"),
//	        privacy.AlwaysDenyRule(),
//	    },
//	}))
//
// Filter rules such as TenantFilter do not decide. They append a predicate
// to the query or bulk statement, which compiles into its WHERE clause like
// a filter registered with DB.HasQueryFilter.
//
// The viewer of a request travels in its context:
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "7", TenantID: "acme"})
//
// A denied operation fails with a *veloq.PrivacyError wrapping the
// decision.
package privacy
