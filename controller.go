package auth

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// AuthControllerRoutes are the mount points for the JSON endpoints.
type AuthControllerRoutes struct {
	Signup        string
	Confirm       string
	Login         string
	Logout        string
	PasswordReset string
	PasswordNew   string
	Profile       string
}

// AuthController exposes the account flows over go-router as a JSON API.
type AuthController struct {
	Logger       Logger
	Accounts     *Accounts
	Guard        *Guard
	Cookies      CookieOptions
	Routes       *AuthControllerRoutes
	ErrorHandler func(router.Context, error) error
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerAccounts(accounts *Accounts) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Accounts = accounts
		return c
	}
}

func WithControllerGuard(guard *Guard) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Guard = guard
		return c
	}
}

func WithControllerCookies(opts CookieOptions) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Cookies = opts
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Signup:        "/auth/signup",
			Confirm:       "/auth/confirm",
			Login:         "/auth/login",
			Logout:        "/auth/logout",
			PasswordReset: "/auth/password-reset",
			PasswordNew:   "/auth/password-new",
			Profile:       "/auth/me",
		},
	}
	c.ErrorHandler = c.errorResponse

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Accounts == nil {
		panic("Missing Accounts in auth controller...")
	}

	if c.Guard == nil {
		c.Guard = NewGuard(c.Accounts.TokenService()).
			WithCookieName(c.Cookies.name())
	}

	return c
}

// RegisterAuthRoutes mounts the account flows on the given router.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Signup, controller.SignupPost).
		SetName("auth.signup.post")

	app.Get(controller.Routes.Confirm, controller.ConfirmGet).
		SetName("auth.confirm.get")

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.login.post")

	app.Post(controller.Routes.Logout, controller.LogoutPost).
		SetName("auth.logout.post")

	app.Post(controller.Routes.PasswordReset, controller.ForgotPasswordPost).
		SetName("auth.pwd-reset.post")

	app.Post(controller.Routes.PasswordNew, controller.ResetPasswordPost).
		SetName("auth.pwd-new.post")

	app.Get(controller.Routes.Profile,
		controller.Guard.RequireSession()(controller.ProfileGet),
	).SetName("auth.me.get")
}

func (a *AuthController) SignupPost(ctx router.Context) error {
	payload := new(RegisterInput)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("signup parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	result, err := a.Accounts.Register(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"message": "Signup successful. Check your email to confirm your account.",
		"user":    result,
	})
}

func (a *AuthController) ConfirmGet(ctx router.Context) error {
	token := ctx.Query("token", "")

	if err := a.Accounts.ConfirmEmail(ctx.Context(), token); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Email confirmed. You can now log in.",
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, ErrInvalidCredentials)
	}

	result, err := a.Accounts.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	SetSessionCookie(ctx, result.Token, a.Cookies)

	return ctx.JSON(http.StatusOK, map[string]any{
		"success": true,
		"token":   result.Token,
		"user":    result.User,
	})
}

func (a *AuthController) LogoutPost(ctx router.Context) error {
	ClearSessionCookie(ctx, a.Cookies)

	return ctx.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out.",
	})
}

// ForgotPasswordRequest payload
type ForgotPasswordRequest struct {
	Email string `form:"email" json:"email"`
}

func (a *AuthController) ForgotPasswordPost(ctx router.Context) error {
	payload := new(ForgotPasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if err := a.Accounts.ForgotPassword(ctx.Context(), payload.Email); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	// same answer whether or not the address exists
	return ctx.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "If that email is registered, a reset link is on its way.",
	})
}

func (a *AuthController) ResetPasswordPost(ctx router.Context) error {
	payload := new(ResetPasswordInput)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password new parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if err := a.Accounts.ResetPassword(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Password updated. You can now log in.",
	})
}

func (a *AuthController) ProfileGet(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx)
	if !ok {
		return a.ErrorHandler(ctx, ErrTokenMissing)
	}

	profile, err := a.Accounts.Profile(ctx.Context(), claims.UserID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"success": true,
		"user":    profile,
	})
}

func (a *AuthController) errorResponse(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := statusForError(richErr)
	if status >= http.StatusInternalServerError {
		a.Logger.Error("request failed", "error", richErr.Message, "category", richErr.Category)
	}

	return ctx.JSON(status, map[string]any{
		"success":   false,
		"message":   richErr.Message,
		"text_code": richErr.TextCode,
	})
}

func statusForError(err *goerrors.Error) int {
	if err.Code >= http.StatusBadRequest {
		return err.Code
	}

	switch err.Category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
