package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"gclipool-go/internal/apierr"
	"gclipool-go/internal/oauth"
)

func (s *Server) handleListCreds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"credentials": s.deps.Pool.ListStatuses(c.Request.Context())})
}

// importCredRequest mirrors the credential file format produced by the
// OAuth flow ("token" accepted as a legacy alias for "access_token").
type importCredRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token" binding:"required"`
	AccessToken  string `json:"access_token"`
	Token        string `json:"token"`
	ProjectID    string `json:"project_id"`
	Expiry       string `json:"expiry"`
}

func (s *Server) handleImportCred(c *gin.Context) {
	var req importCredRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Data(http.StatusBadRequest, "application/json", apierr.EnvelopeJSON(http.StatusBadRequest, "invalid credential payload: "+err.Error()))
		return
	}
	access := req.AccessToken
	if access == "" {
		access = req.Token
	}
	creds := &oauth.Credentials{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		RefreshToken: req.RefreshToken,
		AccessToken:  access,
		ProjectID:    req.ProjectID,
	}
	if req.Expiry != "" {
		if t, err := time.Parse(time.RFC3339, req.Expiry); err == nil {
			creds.ExpiresAt = t
		}
	}

	id, err := s.deps.Pool.Import(c.Request.Context(), creds)
	if err != nil {
		c.Data(http.StatusInternalServerError, "application/json", apierr.EnvelopeJSON(http.StatusInternalServerError, err.Error()))
		return
	}
	log.WithField("credential", id).Info("credential imported")
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handlePatchCred(c *gin.Context) {
	var req struct {
		Disabled *bool `json:"disabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Data(http.StatusBadRequest, "application/json", apierr.EnvelopeJSON(http.StatusBadRequest, "disabled field is required"))
		return
	}
	id := c.Param("id")
	if err := s.deps.Pool.SetDisabled(c.Request.Context(), id, *req.Disabled); err != nil {
		c.Data(http.StatusNotFound, "application/json", apierr.EnvelopeJSON(http.StatusNotFound, "credential not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "disabled": *req.Disabled})
}

func (s *Server) handleDeleteCred(c *gin.Context) {
	id := c.Param("id")
	if !s.deps.Pool.Delete(c.Request.Context(), id) {
		c.Data(http.StatusNotFound, "application/json", apierr.EnvelopeJSON(http.StatusNotFound, "credential not found"))
		return
	}
	log.WithField("credential", id).Info("credential deleted")
	c.Status(http.StatusNoContent)
}

func (s *Server) handleForceRotate(c *gin.Context) {
	s.deps.Pool.ForceRotate()
	c.JSON(http.StatusOK, gin.H{"rotated": true})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.ConfigStore.GetAll(c.Request.Context()))
}

func (s *Server) handlePutConfig(c *gin.Context) {
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.Data(http.StatusBadRequest, "application/json", apierr.EnvelopeJSON(http.StatusBadRequest, "invalid config payload"))
		return
	}
	if len(updates) == 0 {
		c.Data(http.StatusBadRequest, "application/json", apierr.EnvelopeJSON(http.StatusBadRequest, "empty config payload"))
		return
	}
	s.deps.ConfigStore.UpdateMulti(c.Request.Context(), updates)
	log.WithField("keys", len(updates)).Info("runtime config updated")
	c.JSON(http.StatusOK, s.deps.ConfigStore.GetAll(c.Request.Context()))
}
