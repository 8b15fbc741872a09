package usercontext

// Locals keys shared by the auth middleware and controllers.
const (
	KeyUserContext = "USER_CONTEXT"
	KeyUserID      = "user_id"
	KeyIsAdmin     = "isAdmin"
)
