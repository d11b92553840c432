package realtime

import (
	"log"
	"net/http"

	"marketplace-service/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS authenticates the caller, upgrades the connection and keeps it registered until
// the client goes away. Inbound frames are ignored.
func ServeWS(reg Registry, tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.Parse(auth.FromRequest(c.Request, true))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return
		}

		reg.Register(claims.UserID, conn)
		log.Printf("ws: user %d connected", claims.UserID)
		reg.Send(claims.UserID, "authenticated", gin.H{"userId": claims.UserID})

		defer func() {
			reg.Unregister(claims.UserID, conn)
			conn.Close()
			log.Printf("ws: user %d disconnected", claims.UserID)
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
