package httpapi

import (
	"errors"
	"net/http"

	"bodyconsumer/internal/auth"
	"bodyconsumer/internal/config"
	"bodyconsumer/internal/httpapi/handlers"
	"bodyconsumer/internal/httpapi/middlewares"
	"bodyconsumer/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type API struct {
	cfg     config.Config
	auth    *auth.Authenticator
	handler *handlers.Handler
}

func New(cfg config.Config, svc *service.Service, authn *auth.Authenticator) *API {
	return &API{
		cfg:     cfg,
		auth:    authn,
		handler: handlers.New(cfg, svc),
	}
}

func (a *API) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(
		middleware.Recover(),
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.CORSWithConfig(a.corsConfig()),
	)

	a.registerRoutes(e)
	return e
}

// corsConfig lets browser clients send bodies with a token and read the
// consume and rate-limit response headers.
func (a *API) corsConfig() middleware.CORSConfig {
	exposed := append([]string{
		handlers.HeaderBlobSize,
		handlers.HeaderBodyType,
		echo.HeaderRetryAfter,
	}, middlewares.RateLimitHeaders...)

	return middleware.CORSConfig{
		AllowOrigins: a.cfg.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{
			echo.HeaderContentType,
			echo.HeaderAuthorization,
			auth.HeaderAPIToken,
		},
		ExposeHeaders: exposed,
		MaxAge:        600,
	}
}

// errorHandler renders every error as {"error": ..., "requestId": ...}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	}

	body := map[string]any{
		"error":     message,
		"requestId": c.Response().Header().Get(echo.HeaderXRequestID),
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		c.Logger().Error(err)
	}
}
