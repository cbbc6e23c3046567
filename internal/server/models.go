package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gclipool-go/internal/models"
)

func (s *Server) handleGeminiModels(c *gin.Context) {
	catalog := models.All()
	out := make([]gin.H, 0, len(catalog))
	for _, m := range catalog {
		out = append(out, gin.H{
			"name":                       "models/" + m.ID,
			"displayName":                m.DisplayName,
			"inputTokenLimit":            m.InputLimit,
			"outputTokenLimit":           m.OutputLimit,
			"supportedGenerationMethods": []string{"generateContent", "streamGenerateContent", "countTokens"},
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

func (s *Server) handleOpenAIModels(c *gin.Context) {
	created := time.Now().Unix()
	catalog := models.All()
	data := make([]gin.H, 0, len(catalog))
	for _, m := range catalog {
		data = append(data, gin.H{
			"id":       m.ID,
			"object":   "model",
			"created":  created,
			"owned_by": "google",
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
