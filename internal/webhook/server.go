package webhook

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/windmill-labs/windmill-worker/pkg/logger"
)

// TriggerHandler runs a verified request through to whatever invokes the
// underlying script/flow; the webhook package only owns verification, not
// dispatch.
type TriggerHandler func(provider, path string, req Request) (int, interface{})

// Server is the thin inbound HTTP surface that receives trigger requests
// and hands verified ones to a TriggerHandler.
type Server struct {
	engine  *gin.Engine
	log     logger.Logger
	secrets map[string]string // provider/path -> secret
	auth    map[string]AuthMethod
	handler TriggerHandler
	limiter *rate.Limiter
}

// NewServer builds a Server. rps bounds inbound requests per second across
// all trigger paths.
func NewServer(handler TriggerHandler, rps float64) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())

	s := &Server{
		engine:  engine,
		log:     logger.Default().WithComponent("webhook"),
		secrets: make(map[string]string),
		auth:    make(map[string]AuthMethod),
		handler: handler,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}

	engine.Any("/webhooks/:provider/:path", s.handleTrigger)
	engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	return s
}

// RegisterSecret associates a provider+path pair with the secret Verify
// should check signatures against.
func (s *Server) RegisterSecret(provider, path, secret string) {
	s.secrets[provider+"/"+path] = secret
}

// RegisterAuth associates a path with a Basic-Auth/API-Key AuthMethod
// instead of an HMAC provider.
func (s *Server) RegisterAuth(path string, method AuthMethod) {
	s.auth[path] = method
}

// Handler exposes the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleTrigger(c *gin.Context) {
	if !s.limiter.Allow() {
		c.Status(http.StatusTooManyRequests)
		return
	}

	provider := c.Param("provider")
	path := c.Param("path")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	req := Request{Headers: c.Request.Header, Body: body, Secret: s.secrets[provider+"/"+path]}

	if method, ok := s.auth[path]; ok {
		if verr := method.Check(req); verr != nil {
			writeVerifyError(c, verr)
			return
		}
	} else {
		challenge, verr := Verify(provider, req)
		if verr != nil {
			writeVerifyError(c, verr)
			return
		}
		if challenge != nil {
			c.Data(challenge.StatusCode, challenge.ContentType, challenge.Body)
			return
		}
	}

	start := time.Now()
	status, result := s.handler(provider, path, req)
	s.log.Info("webhook trigger dispatched", "provider", provider, "path", path, "status", status, "duration", time.Since(start).String())
	c.JSON(status, result)
}

func writeVerifyError(c *gin.Context, err error) {
	if ve, ok := err.(*VerifyError); ok {
		c.JSON(ve.StatusCode, gin.H{"error": ve.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
