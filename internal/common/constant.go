package common

// Cookie names carrying the credentials between the HTTP API and its clients.
const (
	AccessTokenCookieName  = "accessToken"
	RefreshTokenCookieName = "refreshToken"
)

// Paths of the auth endpoints. The renewal client must never try to renew
// a failed call to RefreshPath.
const (
	SignupPath  = "/auth/signup"
	LoginPath   = "/auth/login"
	CheckPath   = "/auth/check"
	RefreshPath = "/auth/refresh"
	LogoutPath  = "/auth/logout"
	OrdersPath  = "/sales/orders"
)
