package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"oko-node/api/handlers"
	"oko-node/api/middleware"
	"oko-node/internal/kernel"
	"oko-node/internal/token"
)

// SetupRouter wires every endpoint. Keygen and the commit-reveal
// handshake authenticate on their own; everything else requires a
// session token, and the triples pipeline additionally requires an
// API key.
func SetupRouter(tssHandler *handlers.TssHandler, crHandler *handlers.CommitRevealHandler,
	tokens *token.Service, apiKeys []string) *gin.Engine {
	router := gin.Default()

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	v1 := router.Group("/tss/v1")
	{
		v1.POST("/keygen", tssHandler.Keygen)
		v1.POST("/keygen_ed25519", tssHandler.KeygenEd25519)

		authed := v1.Group("", middleware.JWTAuth(tokens))
		{
			triples := authed.Group("/triples", middleware.APIKeyAuth(apiKeys))
			for step := 1; step <= kernel.TriplesSteps; step++ {
				triples.POST(fmt.Sprintf("/step%d", step), tssHandler.TriplesStep(step))
			}

			for step := 1; step <= kernel.PresignSteps; step++ {
				authed.POST(fmt.Sprintf("/presign/step%d", step), tssHandler.PresignStep(step))
			}
			for step := 1; step <= kernel.SignSteps; step++ {
				authed.POST(fmt.Sprintf("/sign/step%d", step), tssHandler.SignStep(step))
			}

			authed.POST("/presign_ed25519", tssHandler.PresignEd25519)
			for round := 1; round <= kernel.SignRounds; round++ {
				authed.POST(fmt.Sprintf("/sign_ed25519/round%d", round), tssHandler.SignEd25519Round(round))
			}

			authed.POST("/session/abort", tssHandler.AbortSession)
			authed.GET("/wallets", tssHandler.GetWallets)
		}
	}

	cr := router.Group("/commit-reveal/v1")
	{
		cr.POST("/commit", crHandler.Commit)
		cr.POST("/sign_in", crHandler.SignIn)
		cr.POST("/sign_up", crHandler.SignUp)
		cr.POST("/reshare", crHandler.Reshare)
	}

	return router
}
