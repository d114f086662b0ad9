package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aartemyeu/void.bookkeeper/internal/extractor"
	"github.com/aartemyeu/void.bookkeeper/internal/metrics"
	"github.com/aartemyeu/void.bookkeeper/internal/models"
	"github.com/aartemyeu/void.bookkeeper/internal/parser"
	"github.com/aartemyeu/void.bookkeeper/internal/writer"
)

// ExtractResponse is the JSON response from the /api/extract endpoint.
type ExtractResponse struct {
	Success      bool                     `json:"success"`
	Bank         string                   `json:"bank"`
	Metadata     models.StatementMetadata `json:"metadata"`
	Transactions []models.Transaction     `json:"transactions"`
	Count        int                      `json:"count"`
	Net          string                   `json:"net,omitempty"`
	CSV          string                   `json:"csv"`
	RawText      string                   `json:"rawText,omitempty"`
	Version      string                   `json:"version,omitempty"`
	DebugLines   []models.DebugLine       `json:"debugLines,omitempty"`
}

// ErrorResponse is returned with any non-2xx status.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// TextExtractor OCRs an uploaded PDF. *extractor.OCR implements it.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	// OCR handles PDF uploads. Nil means only text input is accepted.
	OCR     TextExtractor
	Options parser.Options
	Version string
	Logger  zerolog.Logger
	// Metrics is served on /metrics when set.
	Metrics *metrics.Metrics
	// TempDir receives uploaded PDFs while they are OCR'd. Empty means
	// os.TempDir.
	TempDir string
}

// NewApp builds the fiber app with middleware and routes.
func NewApp(h *Handler, maxUploadMB int) *fiber.App {
	if maxUploadMB <= 0 {
		maxUploadMB = 32
	}
	app := fiber.New(fiber.Config{
		AppName:               "statement-extractor",
		BodyLimit:             maxUploadMB << 20,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	app.Use(requestLogger(h.Logger))
	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/api/health", h.HandleHealth)
	app.Post("/api/extract", h.HandleExtract)
	if h.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.Metrics.Handler()))
	}
}

func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": h.Version,
		"engine":  "fiber",
	})
}

// HandleExtract parses one statement. Input is either a multipart "file"
// (a scanned PDF, or a .txt holding already-OCR'd text) or a "text" form
// field. Optional fields: bank, resolveDates, debug.
func (h *Handler) HandleExtract(c *fiber.Ctx) error {
	opts := h.Options
	var err error
	if opts.ResolveDates, err = formBool(c, "resolveDates", opts.ResolveDates); err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}
	if opts.Debug, err = formBool(c, "debug", opts.Debug); err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	var bankType models.BankType
	if bankParam := c.FormValue("bank"); bankParam != "" {
		if bankType, err = parser.ParseBankType(bankParam); err != nil {
			return writeError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	text, status, err := h.inputText(c)
	if err != nil {
		return writeError(c, status, err.Error())
	}
	pages := []string{text}

	if bankType == "" {
		if bankType, err = parser.AutoDetect(pages); err != nil {
			h.Logger.Warn().Str("request_id", requestID(c)).Str("bank", string(parser.DefaultBank)).Msg("bank not detected, using default parser")
			bankType = parser.DefaultBank
		}
	}

	p, err := parser.New(bankType, opts)
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, err.Error())
	}
	stmt, err := p.Parse(pages)
	if err != nil {
		h.Metrics.Failed()
		return writeError(c, fiber.StatusUnprocessableEntity, fmt.Sprintf("Parsing failed: %v", err))
	}
	h.Metrics.Parsed(stmt)

	var csvBuf bytes.Buffer
	if err := (&writer.CSVWriter{}).WriteTransactions(&csvBuf, stmt.Transactions); err != nil {
		return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("CSV generation failed: %v", err))
	}

	// Ensure transactions is never nil (nil marshals to JSON null, not [])
	txns := stmt.Transactions
	if txns == nil {
		txns = []models.Transaction{}
	}

	resp := ExtractResponse{
		Success:      true,
		Bank:         string(bankType),
		Metadata:     stmt.Metadata,
		Transactions: txns,
		Count:        len(txns),
		CSV:          csvBuf.String(),
		Version:      h.Version,
	}
	if net, err := models.NetMovement(txns); err == nil {
		resp.Net = net.StringFixed(2)
	} else {
		h.Logger.Warn().Err(err).Msg("could not total transaction amounts")
	}
	if opts.Debug {
		resp.RawText = text
		resp.DebugLines = stmt.DebugLines
	}

	h.Logger.Info().
		Str("request_id", requestID(c)).
		Str("period_from", stmt.Metadata.PeriodFrom.String()).
		Str("period_to", stmt.Metadata.PeriodTo.String()).
		Int("transactions", len(txns)).
		Msg("extracted statement")

	return c.JSON(resp)
}

// inputText returns the statement text from the request and, on failure,
// the status to report.
func (h *Handler) inputText(c *fiber.Ctx) (string, int, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		text := c.FormValue("text")
		if strings.TrimSpace(text) == "" {
			return "", fiber.StatusBadRequest, errors.New("No input. Use form field 'file' or 'text'.")
		}
		return text, 0, nil
	}

	switch strings.ToLower(filepath.Ext(fh.Filename)) {
	case ".txt":
		f, err := fh.Open()
		if err != nil {
			return "", fiber.StatusBadRequest, fmt.Errorf("Failed to read upload: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", fiber.StatusBadRequest, fmt.Errorf("Failed to read upload: %w", err)
		}
		return string(data), 0, nil

	case ".pdf":
		if h.OCR == nil {
			return "", fiber.StatusInternalServerError, errors.New("OCR is not available on this server; send OCR'd text instead.")
		}
		tmp, err := os.CreateTemp(h.TempDir, "statement-*.pdf")
		if err != nil {
			return "", fiber.StatusInternalServerError, errors.New("Failed to create temp file.")
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		if err := c.SaveFile(fh, tmp.Name()); err != nil {
			return "", fiber.StatusInternalServerError, errors.New("Failed to save uploaded file.")
		}

		start := time.Now()
		text, err := h.OCR.ExtractText(c.UserContext(), tmp.Name())
		h.Metrics.ObserveExtraction("ocr", time.Since(start))
		if err != nil {
			h.Metrics.Failed()
			h.Logger.Error().Err(err).Str("request_id", requestID(c)).Str("file", fh.Filename).Msg("OCR failed")
			if errors.Is(err, extractor.ErrMissingTools) {
				return "", fiber.StatusInternalServerError, err
			}
			return "", fiber.StatusUnprocessableEntity, fmt.Errorf("OCR failed: %w", err)
		}
		h.Logger.Debug().Str("file", fh.Filename).Dur("took", time.Since(start)).Msg("OCR done")
		return text, 0, nil

	default:
		return "", fiber.StatusBadRequest, errors.New("Only PDF and .txt files are supported.")
	}
}

func formBool(c *fiber.Ctx, key string, fallback bool) (bool, error) {
	v := c.FormValue(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q: want true or false", key, v)
	}
	return b, nil
}

func requestID(c *fiber.Ctx) string {
	return c.GetRespHeader(fiber.HeaderXRequestID)
}

func requestLogger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("request_id", requestID(c)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Str("remote_addr", c.IP()).
			Msg("HTTP request")
		return err
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return writeError(c, code, err.Error())
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{
		Success: false,
		Error:   msg,
	})
}
