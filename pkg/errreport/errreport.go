// Package errreport forwards server errors and panics to Rollbar.
package errreport

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rollbar/rollbar-go"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/pkg/config"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/middleware/requestid"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

// Reporter sends errors to an external tracker.
type Reporter interface {
	Error(err error, req *http.Request, extras map[string]interface{})
	Critical(err error, req *http.Request, extras map[string]interface{})
	Close()
}

// Nop discards every report.
type Nop struct{}

func (Nop) Error(error, *http.Request, map[string]interface{})    {}
func (Nop) Critical(error, *http.Request, map[string]interface{}) {}
func (Nop) Close()                                                 {}

// Rollbar reports through the rollbar-go async client.
type Rollbar struct {
	client *rollbar.Client
}

// New returns a Rollbar reporter when a token is configured, otherwise Nop.
func New(cfg *config.Config, version string) Reporter {
	if cfg == nil || cfg.Rollbar.Token == "" {
		return Nop{}
	}
	client := rollbar.New(cfg.Rollbar.Token, cfg.Env, version, "", "")
	client.SetEnabled(true)
	return &Rollbar{client: client}
}

func (r *Rollbar) Error(err error, req *http.Request, extras map[string]interface{}) {
	r.send(rollbar.ERR, err, req, extras)
}

func (r *Rollbar) Critical(err error, req *http.Request, extras map[string]interface{}) {
	r.send(rollbar.CRIT, err, req, extras)
}

func (r *Rollbar) send(level string, err error, req *http.Request, extras map[string]interface{}) {
	if req != nil {
		r.client.RequestErrorWithExtras(level, req, err, extras)
		return
	}
	r.client.ErrorWithExtras(level, err, extras)
}

// Close flushes pending items.
func (r *Rollbar) Close() {
	r.client.Wait()
	_ = r.client.Close()
}

// Middleware recovers panics and reports them as critical, then reports any 5xx response
// carrying gin errors.
func Middleware(reporter Reporter, logger *zap.Logger) gin.HandlerFunc {
	if reporter == nil {
		reporter = Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", rec)
				}
				logger.Error("panic recovered", zap.Error(err), zap.String("path", c.Request.URL.Path))
				reporter.Critical(err, c.Request, extras(c))
				response.Error(c, appErrors.ErrInternal)
				c.Abort()
			}
		}()

		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError && len(c.Errors) > 0 {
			reporter.Error(c.Errors.Last().Err, c.Request, extras(c))
		}
	}
}

func extras(c *gin.Context) map[string]interface{} {
	out := map[string]interface{}{"route": c.FullPath()}
	if id := requestid.Value(c); id != "" {
		out["request_id"] = id
	}
	return out
}
