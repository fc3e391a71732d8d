package testutil

// Minimal is a single local database with nothing else configured.
func Minimal() *Builder {
	return NewBuilder().WithLocalDB("local")
}

// Governance is a node mounting a governance partition from a remote that
// shares an archive database, plus a read-only config remote, activity
// logging under /projects and a service lifecycle.
func Governance() *Builder {
	return NewBuilder().
		WithCache().
		WithLocalDB("local").
		WithLocalDB("archive", WithUser("Archiver")).
		WithRemote("gov", "https://gov.example.com/registry", RemoteDBConfig("archive")).
		WithRemote("cfg", "https://cfg.example.com/registry", RemoteCacheID("cfg-cache"), RemoteReadOnly()).
		WithMount("/_system/governance", "gov", "/_system/gov-remote").
		WithMount("/_system/shared", "cfg", "/_system/config", ResolveLinks(false)).
		WithHandler("ActivityLogHandler", Methods("PUT,DELETE"),
			FilterProperty("putPattern", "/projects/.*"),
			FilterProperty("deletePattern", "/projects/.*")).
		WithHandler("NoCacheHandler", FilterProperty("getPattern", "/volatile/.*")).
		WithLifecycle("ServiceLifecycle", "Development,Testing,Production").
		WithQueryProcessor("application/vnd.sql.query", "SQLQueryProcessor")
}
