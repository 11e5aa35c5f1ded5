package web

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/airenas/meetsum/internal/pkg/api"
	"github.com/airenas/meetsum/internal/pkg/render"
	"github.com/airenas/meetsum/internal/pkg/utils"
	"github.com/airenas/meetsum/internal/pkg/workflow"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SessionProvider returns a session by ID or starts a new one
type SessionProvider interface {
	GetOrNew(id string) (*workflow.Session, bool)
}

// WSConnHandler WebSocketConnection wrapper
type WSConnHandler interface {
	HandleConnection(WsConn) error
}

// Data keeps data required for service work
type Data struct {
	Port      int
	Sessions  SessionProvider
	WSHandler WSConnHandler
	// MaxUploadSize is echo body limit value, e.g. 50M
	MaxUploadSize string
	// SecureCookie marks the session cookie secure
	SecureCookie bool
}

const sessionCookie = "meetsum_session"

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP meetsum service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 180 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Sessions == nil {
		return errors.New("no sessions")
	}
	if data.WSHandler == nil {
		return errors.New("no WSHandler")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("meetsum", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	if data.MaxUploadSize != "" {
		e.Use(middleware.BodyLimit(data.MaxUploadSize))
	}
	promMdlw.Use(e)

	e.GET("/", index(data))
	e.POST("/upload", upload(data))
	e.POST("/summarize", summarize(data))
	e.POST("/tab/:id", selectTab(data))
	e.GET("/view", view(data))
	e.GET("/analysis-types", analysisTypes(data))
	e.GET("/subscribe", subscribeHandler(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func index(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		s := session(c, data)
		return respond(c, s, nil)
	}
}

func view(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		s := session(c, data)
		return c.JSON(http.StatusOK, s.View())
	}
}

type typeOption struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"-"`
}

var typeLabels = map[api.AnalysisType]string{
	api.Comprehensive: "Comprehensive Summary",
	api.Topics:        "Key Topics",
	api.Actions:       "Action Items",
	api.Sentiment:     "Sentiment Analysis",
	api.All:           "All Analyses",
}

func typeOptions(selected string) []typeOption {
	res := []typeOption{}
	for _, t := range api.AnalysisTypes() {
		res = append(res, typeOption{Value: t.String(), Label: typeLabels[t], Selected: t.String() == selected})
	}
	return res
}

func analysisTypes(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, typeOptions(""))
	}
}

func upload(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("upload method")()
		s := session(c, data)

		file, err := takeFile(c)
		if err != nil {
			return respond(c, s, err)
		}
		return respond(c, s, s.Transcribe(c.Request().Context(), file))
	}
}

func takeFile(c echo.Context) (*api.UploadFile, error) {
	fh, err := c.FormFile(api.PrmFile)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, utils.NewErrValidation(fmt.Sprintf("Can't read file: %v", err))
	}
	return readFile(fh)
}

func readFile(fh *multipart.FileHeader) (*api.UploadFile, error) {
	f, err := fh.Open()
	if err != nil {
		goapp.Log.Warn().Err(err).Msg("can't open file")
		return nil, utils.NewErrValidation("Can't read file")
	}
	defer f.Close()
	bytes, err := io.ReadAll(f)
	if err != nil {
		goapp.Log.Warn().Err(err).Msg("can't read file")
		return nil, utils.NewErrValidation("Can't read file")
	}
	return &api.UploadFile{Name: utils.CleanFileName(fh.Filename), Data: bytes}, nil
}

type summarizeInput struct {
	AnalysisType string `json:"analysis_type" form:"analysis_type"`
}

func summarize(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("summarize method")()
		s := session(c, data)

		var in summarizeInput
		if err := c.Bind(&in); err != nil {
			return respond(c, s, utils.NewErrValidation("Wrong input"))
		}
		return respond(c, s, s.Analyze(c.Request().Context(), api.AnalysisType(in.AnalysisType)))
	}
}

func selectTab(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		s := session(c, data)
		return respond(c, s, s.SelectTab(c.Param("id")))
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.WSHandler.HandleConnection(ws)
	}
}

func session(c echo.Context, data *Data) *workflow.Session {
	id := ""
	if ck, err := c.Cookie(sessionCookie); err == nil {
		id = ck.Value
	}
	res, isNew := data.Sessions.GetOrNew(id)
	if isNew {
		c.SetCookie(&http.Cookie{Name: sessionCookie, Value: res.ID(), Path: "/", HttpOnly: true,
			Secure: data.SecureCookie, SameSite: http.SameSiteLaxMode})
	}
	return res
}

// respond writes the session view. Validation errors are answered with 400 and an alert,
// service errors are already reflected in the session status
func respond(c echo.Context, s *workflow.Session, err error) error {
	code := http.StatusOK
	v := s.View()
	if err != nil {
		if alert, ok := alertFor(err); ok {
			code = http.StatusBadRequest
			v.Alert = alert
		} else if !ignored(err) {
			goapp.Log.Debug().Str("session", s.ID()).Err(err).Msg("action failed")
		}
	}
	if wantsJSON(c.Request()) {
		return c.JSON(code, v)
	}
	return writePage(c, code, v)
}

func alertFor(err error) (string, bool) {
	var errV *utils.ErrValidation
	if errors.As(err, &errV) {
		return errV.Error(), true
	}
	var errTab *render.ErrUnknownTab
	if errors.As(err, &errTab) {
		return errTab.Error(), true
	}
	return "", false
}

func ignored(err error) bool {
	return errors.Is(err, workflow.ErrNoTranscript) || errors.Is(err, workflow.ErrStale) ||
		errors.Is(err, workflow.ErrNoTabs)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) ||
		strings.HasPrefix(r.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}
