package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/yogaflow-backend/api/middleware"
	"github.com/angelmondragon/yogaflow-backend/api/responses"
	"github.com/angelmondragon/yogaflow-backend/internal/users"
	pkgerrors "github.com/angelmondragon/yogaflow-backend/pkg/errors"
	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
)

type sessionUsers interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
	Invalidate(ctx context.Context, id string)
}

type expiryChecker interface {
	CheckAndExpire(ctx context.Context, user *users.User) (bool, error)
}

// SessionMe returns the caller's membership state, expiring a lapsed grace
// period first so the response never shows stale access.
func SessionMe(repo sessionUsers, checker expiryChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
			return
		}

		user, err := repo.FindByID(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user"))
			return
		}
		if user == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "user not found"))
			return
		}

		expired, err := checker.CheckAndExpire(ctx, user)
		if err != nil {
			// serve what we have; the next read or the sweep retries
			if logg != nil {
				logg.Error(ctx, "membership expiry check failed", err)
			}
		} else if expired {
			repo.Invalidate(ctx, userID)
			fresh, err := repo.FindByID(ctx, userID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload user"))
				return
			}
			if fresh != nil {
				user = fresh
			}
		}

		payload := users.FromModel(user)
		if payload.Email == "" {
			payload.Email = middleware.EmailFromContext(ctx)
		}
		responses.WriteSuccess(w, payload)
	}
}
