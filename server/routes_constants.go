package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteIndex  = "/"
	RouteHealth = "/health"

	// Login flow
	RouteLoginStart = "/login-start"
	RouteCallback   = "/oauth2/callback"
	RouteLogout     = "/logout"

	// Session-backed JSON
	RouteMe             = "/me"
	RouteSettingsPublic = "/settings/public"

	// Static Asset Routes (patterns)
	RouteStatic = "/static/{file}"
)
