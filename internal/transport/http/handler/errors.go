package handler

const (
	errInternalServer     = "Internal server error"
	errTokenInvalid       = "Invalid or expired token"
	errSuspiciousLogin    = "Suspicious login attempt"
	errUserNotAllowed     = "User not allowed"
	errRateLimited        = "Too many login link requests, try again later"
	errInvalidRedirect    = "Redirect target is not allowed"
	errInvalidMode        = "response_mode must be json or cookie"
	errPackageNotFound    = "Package not found"
	errPackageForbidden   = "You do not have access to this package"
	errCatalogUnavailable = "Catalog is not available"
	errWebhookInvalid     = "Invalid webhook"
	errWebhookConfig      = "Webhook is not configured"
	errEmptyBody          = "Empty request body"

	detailLinkSent  = "If this email is registered, a login link has been sent."
	detailLoggedOut = "Logged out"
)
