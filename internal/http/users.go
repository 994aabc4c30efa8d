package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hallshelf/hallshelf/internal/auth"
	"github.com/hallshelf/hallshelf/internal/database/users"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// UsersController handles user administration.
type UsersController struct {
	authService *auth.Service
	users       *users.Repository
}

// NewUsersController creates a new UsersController.
func NewUsersController(authService *auth.Service, repo *users.Repository) *UsersController {
	return &UsersController{
		authService: authService,
		users:       repo,
	}
}

// CreateUserBody is the body of POST /api/users.
type CreateUserBody struct {
	Username     string            `json:"username"`
	Email        string            `json:"email"`
	Password     string            `json:"password"`
	Role         entities.UserRole `json:"role"`
	DepartmentID *uint             `json:"department_id"`
	HallID       *uint             `json:"hall_id"`
}

// UpdateRoleBody is the body of PUT /api/users/:id/role.
type UpdateRoleBody struct {
	Role entities.UserRole `json:"role"`
}

// ListUsers handles GET /api/users?role=&hall_id=
func (uc *UsersController) ListUsers(c *gin.Context) {
	page, ok := parsePagination(c)
	if !ok {
		return
	}
	filter := users.Filter{
		Role:   entities.UserRole(c.Query("role")),
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	if filter.HallID, ok = parseQueryID(c, "hall_id"); !ok {
		return
	}

	list, total, err := uc.users.ListUsers(c.Request.Context(), filter)
	if err != nil {
		respondAppError(c, err)
		return
	}
	if list == nil {
		list = []entities.User{}
	}
	c.JSON(http.StatusOK, newPage(list, total, page))
}

// CreateUser handles POST /api/users
func (uc *UsersController) CreateUser(c *gin.Context) {
	var body CreateUserBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondValidation(c, "body", err.Error())
		return
	}
	if body.Role == "" {
		body.Role = entities.UserRoleReader
	}

	user, err := uc.authService.CreateUser(c.Request.Context(), auth.UserInput{
		Username:     body.Username,
		Email:        body.Email,
		Password:     body.Password,
		Role:         body.Role,
		DepartmentID: body.DepartmentID,
		HallID:       body.HallID,
	})
	if err != nil {
		uc.respondUserError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// UpdateRole handles PUT /api/users/:id/role
func (uc *UsersController) UpdateRole(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body UpdateRoleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondValidation(c, "body", err.Error())
		return
	}
	if id == auth.GetUserID(c) && body.Role != entities.UserRoleAdmin {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "cannot demote yourself", Code: "conflict"})
		return
	}

	if err := uc.users.UpdateRole(c.Request.Context(), id, body.Role); err != nil {
		respondAppError(c, err)
		return
	}
	user, err := uc.users.GetUserByID(c.Request.Context(), id)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (uc *UsersController) respondUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "conflict"})
	case auth.IsUserInputError(err):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "validation"})
	default:
		respondAppError(c, err)
	}
}
