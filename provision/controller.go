package provision

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gofiber/fiber/v2"
	"github.com/nyaruka/phonenumbers"

	"github.com/ekklesia/go-accesscode"
)

// Controller exposes the privileged user-provisioning flow over HTTP.
// Callers authenticate with a bearer token; the caller's profile role must
// be Admin.
type Controller struct {
	Handler       *accesscode.ProvisionUserHandler
	Repo          accesscode.RepositoryManager
	Backend       accesscode.IdentityBackend
	Logger        accesscode.Logger
	Route         string
	DefaultRegion string
}

type ControllerOption func(*Controller) *Controller

func NewController(handler *accesscode.ProvisionUserHandler, repo accesscode.RepositoryManager, backend accesscode.IdentityBackend, opts ...ControllerOption) *Controller {
	c := &Controller{
		Handler:       handler,
		Repo:          repo,
		Backend:       backend,
		Route:         "/api/users",
		DefaultRegion: "FR",
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Handler == nil {
		panic("Missing ProvisionUserHandler in provision controller...")
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in provision controller...")
	}

	if c.Backend == nil {
		panic("Missing IdentityBackend in provision controller...")
	}

	return c
}

func WithLogger(logger accesscode.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = logger
		return c
	}
}

func WithRoute(route string) ControllerOption {
	return func(c *Controller) *Controller {
		c.Route = route
		return c
	}
}

// WithDefaultRegion sets the region used to parse national phone numbers.
func WithDefaultRegion(region string) ControllerOption {
	return func(c *Controller) *Controller {
		c.DefaultRegion = region
		return c
	}
}

// RegisterRoutes mounts the provisioning endpoint on the app.
func RegisterRoutes(app *fiber.App, controller *Controller) {
	app.Options(controller.Route, controller.Preflight)
	app.Post(controller.Route, controller.Create)
}

// CreateUserRequest is the provisioning payload.
type CreateUserRequest struct {
	FullName       string `json:"full_name"`
	Gender         string `json:"gender"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	FamilyCategory string `json:"family_category"`
	FamilyName     string `json:"family_name"`
	Role           string `json:"role"`
	Bio            string `json:"bio"`
}

// Validate will run validation rules
func (r CreateUserRequest) Validate(defaultRegion string) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Gender, validation.In("Male", "Female")),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.EmailFormat),
		validation.Field(&r.Phone, validation.By(validatePhone(defaultRegion))),
		validation.Field(&r.Role, validation.Required, validation.By(validateRole)),
		validation.Field(&r.Bio, validation.Length(0, 2000)),
	)
}

func validateRole(value interface{}) error {
	role, _ := value.(string)
	if _, ok := accesscode.ParseProfileRole(role); !ok {
		return validation.NewError("validation_role", "must be a valid role")
	}
	return nil
}

func validatePhone(defaultRegion string) validation.RuleFunc {
	return func(value interface{}) error {
		phone, _ := value.(string)
		if strings.TrimSpace(phone) == "" {
			return nil
		}

		parsed, err := phonenumbers.Parse(phone, defaultRegion)
		if err != nil || !phonenumbers.IsValidNumber(parsed) {
			return validation.NewError("validation_phone", "must be a valid phone number")
		}

		return nil
	}
}

// CreateUserResponse mirrors the contract admin tooling consumes.
type CreateUserResponse struct {
	Success    bool                `json:"success"`
	User       *accesscode.Profile `json:"user,omitempty"`
	AccessCode string              `json:"access_code,omitempty"`
	Message    string              `json:"message,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Preflight answers CORS preflight for browser-based admin tooling.
func (c *Controller) Preflight(ctx *fiber.Ctx) error {
	setCORSHeaders(ctx)
	return ctx.SendStatus(fiber.StatusOK)
}

// Create provisions a new identity/profile pair and returns the generated
// access code to the Admin caller for out-of-band delivery.
func (c *Controller) Create(ctx *fiber.Ctx) error {
	setCORSHeaders(ctx)

	caller, status, err := c.authorizeAdmin(ctx)
	if err != nil {
		c.logError("provision authorization failed", err)
		return ctx.Status(status).JSON(CreateUserResponse{
			Success: false,
			Error:   err.Error(),
		})
	}

	payload := new(CreateUserRequest)
	if err := ctx.BodyParser(payload); err != nil {
		c.logError("provision parse payload failed", err)
		return ctx.Status(fiber.StatusBadRequest).JSON(CreateUserResponse{
			Success: false,
			Error:   "Failed to parse request body",
		})
	}

	if err := payload.Validate(c.DefaultRegion); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(CreateUserResponse{
			Success: false,
			Error:   err.Error(),
		})
	}

	result, err := c.Handler.Execute(ctx.UserContext(), accesscode.ProvisionUserMessage{
		FullName:       payload.FullName,
		Gender:         payload.Gender,
		Email:          payload.Email,
		Phone:          payload.Phone,
		FamilyCategory: payload.FamilyCategory,
		FamilyName:     payload.FamilyName,
		Role:           payload.Role,
		Bio:            payload.Bio,
	})
	if err != nil {
		c.logError("provision execute failed", err)
		return ctx.Status(fiber.StatusBadRequest).JSON(CreateUserResponse{
			Success: false,
			Error:   accesscode.UserMessage(err),
		})
	}

	if c.Logger != nil && caller != nil {
		c.Logger.Info("user provisioned", "admin_id", caller.ID.String(), "profile_id", result.Profile.ID.String())
	}

	return ctx.JSON(CreateUserResponse{
		Success:    true,
		User:       result.Profile,
		AccessCode: result.AccessCode,
		Message:    "User created successfully",
	})
}

// authorizeAdmin resolves the bearer token to a profile and checks its role.
// Returns the HTTP status to answer with on failure.
func (c *Controller) authorizeAdmin(ctx *fiber.Ctx) (*accesscode.Profile, int, error) {
	header := ctx.Get(fiber.HeaderAuthorization)
	if header == "" {
		return nil, fiber.StatusUnauthorized, fiber.NewError(fiber.StatusUnauthorized, "No authorization header")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return nil, fiber.StatusUnauthorized, fiber.NewError(fiber.StatusUnauthorized, "No authorization header")
	}

	identity, err := c.Backend.IdentityFromToken(ctx.UserContext(), token)
	if err != nil {
		return nil, fiber.StatusUnauthorized, fiber.NewError(fiber.StatusUnauthorized, "Authentication failed")
	}

	caller, err := c.Repo.Profiles().GetByAuthID(ctx.UserContext(), identity.ID())
	if err != nil {
		return nil, fiber.StatusForbidden, fiber.NewError(fiber.StatusForbidden, "Unauthorized: Admin access required")
	}

	if !accesscode.IsPrivilegedRole(caller.Role) {
		return nil, fiber.StatusForbidden, fiber.NewError(fiber.StatusForbidden, "Unauthorized: Admin access required")
	}

	return caller, fiber.StatusOK, nil
}

func (c *Controller) logError(msg string, err error) {
	if c.Logger != nil {
		c.Logger.Error(msg, "error", err)
	}
}

func setCORSHeaders(ctx *fiber.Ctx) {
	ctx.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	ctx.Set(fiber.HeaderAccessControlAllowHeaders, "authorization, x-client-info, apikey, content-type")
}
