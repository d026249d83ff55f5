package usercontext

// Locals keys shared between middleware and controllers.
const (
	KeyUserContext   = "USER_CONTEXT"
	KeyFromProtected = "FROM_PROTECTED"
	KeyUserID        = "USER_ID"
	KeyUsername      = "USER_NAME"
	KeyIsAdmin       = "USER_IS_ADMIN"
)
