// Package api serves PSB decoding and encoding over HTTP.
package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/psbkit/internal/convert"
	"github.com/samcharles93/psbkit/internal/logger"
	"github.com/samcharles93/psbkit/internal/version"
	"github.com/samcharles93/psbkit/internal/webui"
	"github.com/samcharles93/psbkit/pkg/psb"
)

const (
	mimeOctetStream = "application/octet-stream"
	mimeYAML        = "application/yaml"
	mimeCBOR        = "application/cbor"
)

// Config configures a Server.
type Config struct {
	// MaxBodyBytes bounds request bodies. Zero selects 256 MiB.
	MaxBodyBytes int64
	// MaxDecodedBytes bounds the inflated size of MDF bodies. Zero
	// selects 1 GiB.
	MaxDecodedBytes int64
	// MaxDocuments bounds the document store.
	MaxDocuments int
	Logger       logger.Logger
}

type Server struct {
	store      *DocumentStore
	log        logger.Logger
	maxBody    int64
	maxDecoded int64
	clock      func() time.Time
	started    time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 256 << 20
	}
	if cfg.MaxDecodedBytes <= 0 {
		cfg.MaxDecodedBytes = 1 << 30
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	s := &Server{
		store:      NewDocumentStore(cfg.MaxDocuments),
		log:        cfg.Logger,
		maxBody:    cfg.MaxBodyBytes,
		maxDecoded: cfg.MaxDecodedBytes,
		clock:      time.Now,
	}
	s.started = s.clock()
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.Use(requestID)
	e.GET("/healthz", s.handleHealth)

	// Browser console
	e.GET("/", func(c *echo.Context) error {
		return c.Redirect(http.StatusFound, "/ui/")
	})
	e.GET("/ui/*", echo.WrapHandler(webui.Handler("/ui/")))

	// Stateless conversion
	e.POST("/v1/info", s.handleInfo)
	e.POST("/v1/decode", s.handleDecode)
	e.POST("/v1/encode", s.handleEncode)

	// Stored documents
	e.POST("/v1/documents", s.handleCreateDocument)
	e.GET("/v1/documents/:id", s.handleGetDocument)
	e.GET("/v1/documents/:id/tree", s.handleDocumentTree)
	e.GET("/v1/documents/:id/psb", s.handleDocumentBinary)
	e.DELETE("/v1/documents/:id", s.handleDeleteDocument)
}

// requestID echoes or assigns X-Request-ID.
func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		return next(c)
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   version.String(),
		Documents: s.store.Len(),
		Uptime:    uptime(s.started, s.clock()),
	})
}

func (s *Server) readBody(c *echo.Context) ([]byte, error) {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, s.maxBody)
	defer func() { _ = body.Close() }()
	return io.ReadAll(body)
}

// load decodes a PSB or MDF request body.
func (s *Server) load(c *echo.Context) (*psb.Document, error) {
	data, err := s.readBody(c)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", psb.ErrFormat)
	}
	return psb.LoadWithOptions(data, psb.LoadOptions{
		VerifyChecksum:      boolParam(c, "verify"),
		Logger:              s.requestLog(c).Slog(),
		MaxDecompressedSize: s.maxDecoded,
	})
}

func (s *Server) requestLog(c *echo.Context) logger.Logger {
	return s.log.With("request_id", c.Response().Header().Get(echo.HeaderXRequestID))
}

func (s *Server) handleInfo(c *echo.Context) error {
	doc, err := s.load(c)
	if err != nil {
		return writeCodecError(c, err)
	}
	return c.JSON(http.StatusOK, describe(doc))
}

func (s *Server) handleDecode(c *echo.Context) error {
	doc, err := s.load(c)
	if err != nil {
		return writeCodecError(c, err)
	}
	return s.writeTree(c, doc)
}

func (s *Server) handleEncode(c *echo.Context) error {
	data, err := s.readBody(c)
	if err != nil {
		return writeCodecError(c, err)
	}
	opts := convert.ImportOptions{DedupResources: boolParam(c, "dedup")}
	if opts.Version, err = versionParam(c); err != nil {
		return writeBadRequest(c, err.Error())
	}

	var doc *psb.Document
	switch format := treeFormat(c); format {
	case "json":
		doc, err = convert.ImportJSON(bytes.NewReader(data), opts)
	case "yaml":
		doc, err = convert.ImportYAML(bytes.NewReader(data), opts)
	default:
		return writeBadRequest(c, fmt.Sprintf("cannot encode from %q", format))
	}
	if err != nil {
		return writeCodecError(c, err)
	}
	return s.writeBinary(c, doc)
}

func (s *Server) handleCreateDocument(c *echo.Context) error {
	doc, err := s.load(c)
	if err != nil {
		return writeCodecError(c, err)
	}
	rec := s.store.Create(c.QueryParam("name"), doc, s.clock())
	s.requestLog(c).Info("document stored", "id", rec.ID, "name", rec.Name, "resources", len(doc.Resources))
	return c.JSON(http.StatusCreated, describeRecord(rec))
}

func (s *Server) record(c *echo.Context) (*documentRecord, bool) {
	return s.store.Get(c.Param("id"))
}

func (s *Server) handleGetDocument(c *echo.Context) error {
	rec, ok := s.record(c)
	if !ok {
		return writeNotFound(c, "document not found")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return c.JSON(http.StatusOK, describeRecord(rec))
}

func (s *Server) handleDocumentTree(c *echo.Context) error {
	rec, ok := s.record(c)
	if !ok {
		return writeNotFound(c, "document not found")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return s.writeTree(c, rec.Document)
}

func (s *Server) handleDocumentBinary(c *echo.Context) error {
	rec, ok := s.record(c)
	if !ok {
		return writeNotFound(c, "document not found")
	}
	v, err := versionParam(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if v != 0 {
		rec.Document.Header.Version = v
	}
	return s.writeBinary(c, rec.Document)
}

func (s *Server) handleDeleteDocument(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "document not found")
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// writeTree renders doc in the requested text format with inline
// resources.
func (s *Server) writeTree(c *echo.Context, doc *psb.Document) error {
	opts := convert.ExportOptions{Resources: convert.ResourceInline}
	var (
		buf  bytes.Buffer
		mime string
		err  error
	)
	switch format := treeFormat(c); format {
	case "json":
		mime = echo.MIMEApplicationJSON
		err = convert.ExportJSON(&buf, doc, opts)
	case "yaml":
		mime = mimeYAML
		err = convert.ExportYAML(&buf, doc, opts)
	case "cbor":
		mime = mimeCBOR
		err = convert.ExportCBOR(&buf, doc, opts)
	default:
		return writeBadRequest(c, fmt.Sprintf("unknown format %q", format))
	}
	if err != nil {
		return writeCodecError(c, err)
	}
	return writeBytes(c, mime, buf.Bytes())
}

// writeBinary builds doc and writes it, MDF-wrapped when ?mdf is set.
func (s *Server) writeBinary(c *echo.Context, doc *psb.Document) error {
	out, err := doc.Build()
	if err != nil {
		return writeCodecError(c, err)
	}
	if boolParam(c, "mdf") {
		level, _ := strconv.Atoi(c.QueryParam("level"))
		if out, err = psb.CompressMDF(out, level); err != nil {
			return writeCodecError(c, err)
		}
	}
	return writeBytes(c, mimeOctetStream, out)
}

func writeBytes(c *echo.Context, mime string, b []byte) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, mime)
	res.Header().Set("Content-Length", strconv.Itoa(len(b)))
	res.WriteHeader(http.StatusOK)
	_, err := res.Write(b)
	return err
}

func treeFormat(c *echo.Context) string {
	f := strings.ToLower(c.QueryParam("format"))
	if f == "" {
		return "json"
	}
	if f == "yml" {
		return "yaml"
	}
	return f
}

func boolParam(c *echo.Context, name string) bool {
	q := c.QueryParam(name)
	return q == "1" || strings.EqualFold(q, "true")
}

func versionParam(c *echo.Context) (uint16, error) {
	q := c.QueryParam("version")
	if q == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(q, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("version: %v", err)
	}
	if _, ok := psb.HeaderLength(uint16(v)); !ok {
		return 0, fmt.Errorf("version: unsupported version %d", v)
	}
	return uint16(v), nil
}
