package portal

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/learnio/learnio/internal/access"
	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/identity"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/session"
	"github.com/learnio/learnio/internal/utils"
	"github.com/learnio/learnio/internal/validator"
)

// Login sends the browser to the hosted sign-in page
func (p *Portal) Login(c *gin.Context) {
	s := session.FromContext(c)
	if s.Authenticated() {
		c.Redirect(http.StatusSeeOther, access.RedirectTarget(s))
		return
	}

	state := uuid.NewString()
	redirect := access.LocalPath(c.Query("redirect"))
	updated, err := p.sessions.BeginSignIn(c.Request.Context(), s.ID, redirect, state)
	if err != nil {
		utils.FromContext(c, p.logger).Error("Failed to start sign-in", "error", err)
		p.render(c, http.StatusServiceUnavailable, Page{Error: &PageError{Message: "Sign-in is unavailable right now.", Retry: c.Request.URL.RequestURI()}})
		return
	}
	session.Replace(c, updated)

	c.Redirect(http.StatusFound, p.identity.SignInURL(p.publicURL+"/auth/callback", state))
}

// Callback completes the provider round trip and makes sure a user record exists
func (p *Portal) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	s := session.FromContext(c)
	log := utils.FromContext(c, p.logger)

	state := c.Query("state")
	if s.Status != session.StatusLoading || state == "" || state != s.OAuthState {
		p.signInFailed(c, s, "Your sign-in expired. Please try again.")
		return
	}

	token, err := p.identity.Exchange(ctx, c.Query("code"), state)
	if err != nil {
		log.Warn("Code exchange failed", "error", err)
		p.signInFailed(c, s, "We could not sign you in. Please try again.")
		return
	}

	s, err = p.sessions.Set(ctx, s.ID, token)
	if err != nil {
		log.Error("Failed to store session", "error", err)
		p.render(c, http.StatusServiceUnavailable, Page{Error: &PageError{Message: "Sign-in is unavailable right now."}})
		return
	}
	session.Replace(c, s)

	// the record may not exist yet for a fresh account; page loads retry until it does
	log.Info("User signed in", "user_email", s.Email())
	if err := p.registerUser(ctx, s); err != nil {
		log.Error("Failed to ensure user record", "user_email", s.Email(), "error", err)
		p.notify(c, session.LevelError, "You are signed in, but we could not finish setting up your account. We will try again shortly.")
	} else {
		p.notify(c, session.LevelSuccess, "Welcome, "+s.Profile.DisplayName)
	}
	c.Redirect(http.StatusSeeOther, access.RedirectTarget(s))
}

func (p *Portal) signInFailed(c *gin.Context, s *session.Session, message string) {
	failed, err := p.sessions.Fail(c.Request.Context(), s.ID, message)
	if err == nil {
		session.Replace(c, failed)
	}
	p.render(c, http.StatusUnauthorized, Page{Error: &PageError{Message: message, Retry: access.LoginPath}})
}

// Register creates an identity account; the user record follows on first sign-in
func (p *Portal) Register(c *gin.Context) {
	var req validator.RegisterRequest
	if !p.bind(c, &req) {
		return
	}

	err := p.identity.CreateAccount(c.Request.Context(), identity.Account{
		Email:       models.NormalizeEmail(req.Email),
		Password:    req.Password,
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	})
	switch {
	case errors.Is(err, identity.ErrAccountExists):
		p.notify(c, session.LevelError, "An account with this email already exists.")
		p.render(c, http.StatusConflict, Page{Error: &PageError{Message: "account already exists"}})
		return
	case err != nil:
		utils.FromContext(c, p.logger).Error("Failed to create account", "error", err)
		p.notify(c, session.LevelError, "We could not create your account. Please try again.")
		p.render(c, http.StatusBadGateway, Page{Error: &PageError{Message: "account creation failed"}})
		return
	}

	p.notify(c, session.LevelSuccess, "Account created. Please sign in.")
	p.render(c, http.StatusCreated, Page{Data: gin.H{"next": access.LoginPath}})
}

// Logout clears the session; the id survives so the goodbye notification is delivered
func (p *Portal) Logout(c *gin.Context) {
	s := session.FromContext(c)
	email := s.Email()

	cleared, err := p.sessions.Clear(c.Request.Context(), s.ID)
	if err != nil {
		utils.FromContext(c, p.logger).Error("Failed to clear session", "error", err)
		p.render(c, http.StatusServiceUnavailable, Page{Error: &PageError{Message: "Sign-out failed. Please try again."}})
		return
	}
	session.Replace(c, cleared)
	p.resolver.Forget(email)

	p.notify(c, session.LevelInfo, "You have been signed out.")
	p.render(c, http.StatusOK, Page{})
}

// UpdateProfile changes the display name and photo at the provider and on the user record
func (p *Portal) UpdateProfile(c *gin.Context) {
	var req models.UpdateProfileRequest
	if !p.bind(c, &req) {
		return
	}
	s := session.FromContext(c)

	mutate(p, c, events.UserProfileUpdated, s.Email(), "Profile updated", func(ctx context.Context, token string) (*models.User, error) {
		if err := p.identity.UpdateProfile(ctx, s.Email(), req.DisplayName, req.PhotoURL); err != nil {
			return nil, err
		}
		user, err := p.backend.UpdateProfile(ctx, token, s.Email(), &req)
		if err != nil {
			return nil, err
		}
		if updated, err := p.sessions.UpdateProfile(ctx, s.ID, req.DisplayName, req.PhotoURL); err == nil {
			session.Replace(c, updated)
		}
		return user, nil
	})
}
