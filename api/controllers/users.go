package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/campus-loyalty/api/responses"
	"github.com/angelmondragon/campus-loyalty/api/validators"
	"github.com/angelmondragon/campus-loyalty/internal/users"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

type registerUserRequest struct {
	Utorid string `json:"utorid" validate:"required,utorid"`
	Name   string `json:"name" validate:"required,min=1,max=50"`
	Email  string `json:"email" validate:"required,campusemail"`
}

type updateUserRequest struct {
	Email      *string     `json:"email" validate:"omitempty,campusemail"`
	Verified   *bool       `json:"verified"`
	Suspicious *bool       `json:"suspicious"`
	Role       *enums.Role `json:"role"`
}

type updateProfileRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=50"`
	Email     *string `json:"email" validate:"omitempty,campusemail"`
	Birthday  *string `json:"birthday" validate:"omitempty,birthday"`
	AvatarURL *string `json:"avatarUrl" validate:"omitempty,url"`
}

type changePasswordRequest struct {
	Old string `json:"old" validate:"required"`
	New string `json:"new" validate:"required,password"`
}

// UserRegister enrolls a new account and returns its activation token.
func UserRegister(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "users service")
			return
		}

		var body registerUserRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Register(r.Context(), users.RegisterInput{
			Utorid: strings.ToLower(body.Utorid),
			Name:   strings.TrimSpace(body.Name),
			Email:  strings.ToLower(strings.TrimSpace(body.Email)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func UserList(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "users service")
			return
		}

		filter, err := parseUserFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func parseUserFilter(r *http.Request) (users.ListFilter, error) {
	page, err := validators.ParsePage(r)
	if err != nil {
		return users.ListFilter{}, err
	}
	filter := users.ListFilter{
		Name:  strings.TrimSpace(r.URL.Query().Get("name")),
		Page:  page.Page,
		Limit: page.Limit,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
		role, err := enums.ParseRole(raw)
		if err != nil {
			return users.ListFilter{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role")
		}
		filter.Role = &role
	}
	if filter.Verified, err = validators.ParseQueryBool(r, "verified"); err != nil {
		return users.ListFilter{}, err
	}
	if filter.Activated, err = validators.ParseQueryBool(r, "activated"); err != nil {
		return users.ListFilter{}, err
	}
	return filter, nil
}

// UserGet returns the cashier view or, for managers, the full record.
func UserGet(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "users service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		userID, err := validators.PathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.Get(r.Context(), userID, identity.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

// UserUpdate applies a manager patch and answers with only the changed fields.
func UserUpdate(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "users service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		userID, err := validators.PathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateUserRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		changed, err := svc.Update(r.Context(), userID, users.UpdateInput{
			Email:      lowerTrimmed(body.Email),
			Verified:   body.Verified,
			Suspicious: body.Suspicious,
			Role:       body.Role,
		}, identity.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, changed)
	}
}

func UserMe(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "users service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		me, err := svc.Me(r.Context(), identity.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, me)
	}
}

func UserUpdateMe(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "users service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		var body updateProfileRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		me, err := svc.UpdateMe(r.Context(), identity.UserID, users.ProfileInput{
			Name:      body.Name,
			Email:     lowerTrimmed(body.Email),
			Birthday:  body.Birthday,
			AvatarURL: body.AvatarURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, me)
	}
}

func UserChangePassword(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "users service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		var body changePasswordRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ChangePassword(r.Context(), identity.UserID, body.Old, body.New); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"message": "password updated"})
	}
}

func lowerTrimmed(value *string) *string {
	if value == nil {
		return nil
	}
	out := strings.ToLower(strings.TrimSpace(*value))
	return &out
}
